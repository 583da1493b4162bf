package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
	"github.com/warp/stock-ledger/metrics"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) ledger.Date { return ledger.MustParseDate(s) }

func fixedClock() time.Time { return time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC) }

type backend struct {
	name string
	open func(t *testing.T) ledger.TxStore
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) ledger.TxStore { return store.NewMemory() }},
		{"sqlite", func(t *testing.T) ledger.TxStore {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func newService(t *testing.T, st ledger.TxStore, opts ...inventory.Option) *inventory.Service {
	t.Helper()
	opts = append([]inventory.Option{inventory.WithClock(fixedClock)}, opts...)
	svc := inventory.NewService(ledger.New(st), opts...)
	for _, code := range []string{"A1", "B2", "C3"} {
		_, err := svc.CreateSKU(context.Background(), inventory.SKUInput{Code: code})
		require.NoError(t, err)
	}
	return svc
}

func stockAt(t *testing.T, svc *inventory.Service, sku, asOf string) ledger.Stock {
	t.Helper()
	stock, err := svc.Ledger().CalculateAsOf(context.Background(), sku, d(asOf))
	require.NoError(t, err)
	return stock
}

func countKind(t *testing.T, svc *inventory.Service, sku string, kind ledger.Kind) int {
	t.Helper()
	events, err := svc.Ledger().Store().ReadEvents(context.Background(), ledger.EventFilter{SKU: sku, Kinds: []ledger.Kind{kind}})
	require.NoError(t, err)
	return len(events)
}

// =============================================================================
// RECEIVING IDEMPOTENCE
// =============================================================================

func TestCloseReceipt_SameReceiptIDTwice_AppendsOnce(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			// GIVEN: A receipt closure with a supplied document id
			ctx := context.Background()
			svc := newService(t, b.open(t))
			cmd := inventory.CloseReceiptCommand{
				ReceiptID:   "DDT-2024-0042",
				ReceiptDate: d("2024-03-10"),
				Origin:      "supplier-x",
				Lines:       []inventory.ReceiptLineInput{{SKU: "A1", Qty: 12}},
			}

			// WHEN: Closing it twice
			first, err := svc.CloseReceipt(ctx, cmd)
			require.NoError(t, err)
			second, err := svc.CloseReceipt(ctx, cmd)
			require.NoError(t, err)

			// THEN: One RECEIPT event total, second call reports already processed
			assert.Equal(t, inventory.OutcomeApplied, first.Outcome)
			assert.Equal(t, inventory.OutcomeAlreadyProcessed, second.Outcome)
			assert.Empty(t, second.Events)
			assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindReceipt))
			assert.Equal(t, 12, stockAt(t, svc, "A1", "2024-03-11").OnHand)
		})
	}
}

func TestCloseReceipt_CompositeKeysPerLine(t *testing.T) {
	// GIVEN: A closure without receipt id, one line already received
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	_, err := svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		ReceiptDate: d("2024-03-10"),
		Origin:      "dc-north",
		Lines:       []inventory.ReceiptLineInput{{SKU: "A1", Qty: 5}},
	})
	require.NoError(t, err)

	// WHEN: Closing a delivery with the same line plus a new one
	res, err := svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		ReceiptDate: d("2024-03-10"),
		Origin:      "dc-north",
		Lines: []inventory.ReceiptLineInput{
			{SKU: "A1", Qty: 5},
			{SKU: "B2", Qty: 8},
		},
	})
	require.NoError(t, err)

	// THEN: Only the new line lands
	require.Len(t, res.Keys, 2)
	assert.Equal(t, "2024-03-10_dc-north_A1", res.Keys[0].Key.String())
	assert.Equal(t, inventory.OutcomeAlreadyProcessed, res.Keys[0].Outcome)
	assert.Equal(t, "2024-03-10_dc-north_B2", res.Keys[1].Key.String())
	assert.Equal(t, inventory.OutcomeApplied, res.Keys[1].Outcome)
	assert.Equal(t, inventory.OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindReceipt))
	assert.Equal(t, 1, countKind(t, svc, "B2", ledger.KindReceipt))
}

func TestCloseReceipt_UnknownSKU_NothingApplied(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			// GIVEN: A closure with one valid and one unknown SKU
			ctx := context.Background()
			svc := newService(t, b.open(t))

			// WHEN: Closing it
			_, err := svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
				ReceiptID:   "R-1",
				ReceiptDate: d("2024-03-10"),
				Lines: []inventory.ReceiptLineInput{
					{SKU: "A1", Qty: 5},
					{SKU: "ZZ", Qty: 1},
				},
			})

			// THEN: Rejected and neither events nor log persisted
			assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
			assert.Equal(t, 0, countKind(t, svc, "A1", ledger.KindReceipt))
			_, err = svc.Ledger().Store().FindReceivingLog(ctx, mustReceiptKey(t, "R-1"))
			assert.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

func TestCloseReceipt_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	_, err := svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{ReceiptDate: d("2024-03-10")})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lines", verr.Field)

	_, err = svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		ReceiptDate: d("2024-03-10"),
		Lines:       []inventory.ReceiptLineInput{{SKU: "A1", Qty: 0}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "qty", verr.Field)

	_, err = svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		Lines: []inventory.ReceiptLineInput{{SKU: "A1", Qty: 1}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "receipt_date", verr.Field)
}

func mustReceiptKey(t *testing.T, id string) ledger.ReceiptKey {
	k, err := ledger.ReceiptKeyFromID(id)
	require.NoError(t, err)
	return k
}

// =============================================================================
// ORDERS
// =============================================================================

func TestConfirmOrder_Idempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			m := metrics.NewRegistry()
			svc := newService(t, b.open(t), inventory.WithMetrics(m))
			cmd := inventory.ConfirmOrderCommand{Date: d("2024-02-09"), SKU: "A1", Qty: 30, ReceiptDate: d("2024-02-10")}

			first, err := svc.ConfirmOrder(ctx, cmd)
			require.NoError(t, err)
			second, err := svc.ConfirmOrder(ctx, cmd)
			require.NoError(t, err)

			assert.Equal(t, "2024-02-09_A1_001", first.OrderID.String())
			assert.Equal(t, inventory.OutcomeApplied, first.Outcome)
			assert.Equal(t, inventory.OutcomeAlreadyProcessed, second.Outcome)
			assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindOrder))
			assert.Equal(t, 30, stockAt(t, svc, "A1", "2024-02-10").OnOrder)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersConfirmed))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersDuplicate))

			logs, err := svc.Ledger().Store().ListOrderLogs(ctx, "A1")
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, ledger.OrderPending, logs[0].Status)
			assert.True(t, logs[0].ReceiptDate.Equal(d("2024-02-10")))
		})
	}
}

func TestConfirmOrders_DualLaneInventoryPosition(t *testing.T) {
	// GIVEN: 50 on hand and a Friday order split into a Saturday and a Monday lane
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	_, err := svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "50"}}, d("2024-02-01"))
	require.NoError(t, err)

	// WHEN: Confirming both lanes in one call
	results, err := svc.ConfirmOrders(ctx, inventory.ConfirmOrdersCommand{
		Date: d("2024-02-09"),
		SKU:  "A1",
		Lanes: []inventory.Lane{
			{Qty: 30, ReceiptDate: d("2024-02-10")},
			{Qty: 50, ReceiptDate: d("2024-02-12")},
		},
	})
	require.NoError(t, err)

	// THEN: Two order ids, and IP distinguishes Saturday from Monday
	require.Len(t, results, 2)
	assert.Equal(t, "2024-02-09_A1_001", results[0].OrderID.String())
	assert.Equal(t, "2024-02-09_A1_002", results[1].OrderID.String())

	sat, err := svc.Ledger().InventoryPosition(ctx, "A1", d("2024-02-10"))
	require.NoError(t, err)
	mon, err := svc.Ledger().InventoryPosition(ctx, "A1", d("2024-02-12"))
	require.NoError(t, err)
	assert.Equal(t, 80, sat.IP)
	assert.Equal(t, 130, mon.IP)

	// AND: Re-sending the batch changes nothing
	again, err := svc.ConfirmOrders(ctx, inventory.ConfirmOrdersCommand{
		Date:  d("2024-02-09"),
		SKU:   "A1",
		Lanes: []inventory.Lane{{Qty: 30, ReceiptDate: d("2024-02-10")}, {Qty: 50, ReceiptDate: d("2024-02-12")}},
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.OutcomeAlreadyProcessed, again[0].Outcome)
	assert.Equal(t, inventory.OutcomeAlreadyProcessed, again[1].Outcome)
	assert.Equal(t, 2, countKind(t, svc, "A1", ledger.KindOrder))
}

func TestConfirmOrder_ReceiptBeforeOrderRejected(t *testing.T) {
	svc := newService(t, store.NewMemory())
	_, err := svc.ConfirmOrder(context.Background(), inventory.ConfirmOrderCommand{
		Date: d("2024-02-09"), SKU: "A1", Qty: 1, ReceiptDate: d("2024-02-08"),
	})
	assert.True(t, ledger.IsClientError(err))
}

func TestReceiptDepletesOrderBucket(t *testing.T) {
	// GIVEN: An order expected on 2024-02-10
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	_, err := svc.ConfirmOrder(ctx, inventory.ConfirmOrderCommand{Date: d("2024-02-09"), SKU: "A1", Qty: 30, ReceiptDate: d("2024-02-10")})
	require.NoError(t, err)

	// WHEN: The goods arrive one day late against that expected date
	_, err = svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		ReceiptID:   "late-1",
		ReceiptDate: d("2024-02-11"),
		Lines:       []inventory.ReceiptLineInput{{SKU: "A1", Qty: 30, ExpectedDate: d("2024-02-10")}},
	})
	require.NoError(t, err)

	// THEN: The 2024-02-10 bucket is gone and stock moved to on hand
	buckets, err := svc.Ledger().OnOrderByDate(ctx, "A1", nil)
	require.NoError(t, err)
	assert.Empty(t, buckets)
	stock := stockAt(t, svc, "A1", "2024-02-12")
	assert.Equal(t, 30, stock.OnHand)
	assert.Equal(t, 0, stock.OnOrder)
}
