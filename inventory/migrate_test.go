package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
)

func TestMigrateLegacy_SeedsAndVerifies(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			// GIVEN: An empty ledger and a legacy export with one unknown SKU
			ctx := context.Background()
			svc := newService(t, b.open(t))
			records := []inventory.LegacyRecord{
				{SKU: "A1", OnHand: "12.000"},
				{SKU: "N9", Description: "new from legacy", OnHand: "7"},
			}

			// WHEN: Migrating with an explicit reference date
			res, err := svc.MigrateLegacy(ctx, records, d("2024-01-31"))
			require.NoError(t, err)

			// THEN: One snapshot per record, the SKU is created, stock replays exactly
			assert.False(t, res.Skipped)
			assert.True(t, res.Verified())
			assert.Equal(t, 2, res.Migrated)
			assert.Equal(t, []string{"N9"}, res.CreatedSKUs)
			assert.Equal(t, 12, stockAt(t, svc, "A1", "2024-02-01").OnHand)
			assert.Equal(t, 7, stockAt(t, svc, "N9", "2024-02-01").OnHand)
			assert.Equal(t, 0, stockAt(t, svc, "A1", "2024-01-31").OnHand)
		})
	}
}

func TestMigrateLegacy_SecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())
	records := []inventory.LegacyRecord{{SKU: "A1", OnHand: "5"}}

	_, err := svc.MigrateLegacy(ctx, records, d("2024-01-31"))
	require.NoError(t, err)
	res, err := svc.MigrateLegacy(ctx, records, d("2024-01-31"))
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindSnapshot))
}

func TestMigrateLegacy_ReferenceDateInference(t *testing.T) {
	ctx := context.Background()

	// Latest record date wins when none is supplied
	svc := newService(t, store.NewMemory())
	res, err := svc.MigrateLegacy(ctx, []inventory.LegacyRecord{
		{SKU: "A1", OnHand: "1", AsOf: d("2024-01-20")},
		{SKU: "B2", OnHand: "2", AsOf: d("2024-01-28")},
	}, ledger.Date{})
	require.NoError(t, err)
	assert.True(t, res.RefDate.Equal(d("2024-01-28")))

	// Otherwise the clock's today
	svc = newService(t, store.NewMemory())
	res, err = svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "1"}}, ledger.Date{})
	require.NoError(t, err)
	assert.True(t, res.RefDate.Equal(d("2024-03-15")))
}

func TestMigrateLegacy_RejectsBadRecords(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	_, err := svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "2.5"}}, d("2024-01-31"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "abc"}}, d("2024-01-31"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.MigrateLegacy(ctx, []inventory.LegacyRecord{{SKU: "A1", OnHand: "1"}, {SKU: "A1", OnHand: "2"}}, d("2024-01-31"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	count, err := svc.Ledger().Store().CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
