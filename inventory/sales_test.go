package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
)

func TestRecordDailySales_DeltaEvents(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			// GIVEN: 20 on hand
			ctx := context.Background()
			svc := newService(t, b.open(t))
			_, err := svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "20"}}, d("2024-03-01"))
			require.NoError(t, err)

			// WHEN: Sales of 6 are reported, re-sent, then corrected to 4
			first, err := svc.RecordDailySales(ctx, d("2024-03-02"), "A1", 6)
			require.NoError(t, err)
			repeat, err := svc.RecordDailySales(ctx, d("2024-03-02"), "A1", 6)
			require.NoError(t, err)
			fix, err := svc.RecordDailySales(ctx, d("2024-03-02"), "A1", 4)
			require.NoError(t, err)

			// THEN: SALE events carry the deltas and stock follows the final figure
			assert.Equal(t, 6, first.Delta)
			assert.Equal(t, inventory.OutcomeAlreadyProcessed, repeat.Outcome)
			assert.Equal(t, -2, fix.Delta)
			assert.Equal(t, 2, countKind(t, svc, "A1", ledger.KindSale))
			assert.Equal(t, 16, stockAt(t, svc, "A1", "2024-03-03").OnHand)

			sales, err := svc.Ledger().Store().ReadSales(ctx, "A1", d("2024-03-01"), d("2024-03-31"))
			require.NoError(t, err)
			require.Len(t, sales, 1)
			assert.Equal(t, 4, sales[0].QtySold)
		})
	}
}

func TestRecordDailySales_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, backends()[0].open(t))

	_, err := svc.RecordDailySales(ctx, d("2024-03-02"), "A1", -1)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.RecordDailySales(ctx, ledger.Date{}, "A1", 1)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.RecordDailySales(ctx, d("2024-03-02"), "ZZ", 1)
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
}
