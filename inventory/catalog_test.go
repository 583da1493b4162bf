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

func TestCreateSKU_InvalidEANIsWarningOnly(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	res, err := svc.CreateSKU(ctx, inventory.SKUInput{Code: "D4", EAN: "4006381333932"})
	require.NoError(t, err)

	assert.Equal(t, ledger.EANInvalid, res.SKU.EANStatus)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "check digit")

	stored, err := svc.Ledger().Store().ReadSKU(ctx, "D4")
	require.NoError(t, err)
	assert.Equal(t, ledger.EANInvalid, stored.EANStatus)
	assert.True(t, stored.InAssortment)
	assert.Equal(t, ledger.DemandStable, stored.DemandVariability)
}

func TestCreateSKU_Duplicate(t *testing.T) {
	svc := newService(t, store.NewMemory())
	_, err := svc.CreateSKU(context.Background(), inventory.SKUInput{Code: "A1"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestUpdateSKU_AppendsEditEvent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	res, err := svc.UpdateSKU(ctx, inventory.SKUInput{Code: "A1", EAN: "4006381333931", LeadTimeDays: 3, MOQ: 12})
	require.NoError(t, err)
	assert.Equal(t, ledger.EANValid, res.SKU.EANStatus)
	assert.Empty(t, res.Warnings)

	events, err := svc.Ledger().Events(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.KindSKUEdit, events[0].Kind)
	assert.Equal(t, "changed: ean, lead_time_days, moq", events[0].Note)
	assert.True(t, events[0].Date.Equal(d("2024-03-15")))

	// Stock is untouched by administrative kinds
	assert.Equal(t, ledger.Stock{SKU: "A1", AsOf: d("2024-04-01")}, stockAt(t, svc, "A1", "2024-04-01"))
}

func TestUpdateSKU_TrimsCodeBeforeLookup(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	// WHEN: The code arrives padded
	res, err := svc.UpdateSKU(ctx, inventory.SKUInput{Code: "  A1 ", LeadTimeDays: 4})
	require.NoError(t, err)

	// THEN: The existing SKU is updated in place
	assert.Equal(t, "A1", res.SKU.Code)
	stored, err := svc.Ledger().Store().ReadSKU(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.LeadTimeDays)
}

func TestUpdateSKU_Unknown(t *testing.T) {
	svc := newService(t, store.NewMemory())
	_, err := svc.UpdateSKU(context.Background(), inventory.SKUInput{Code: "ZZ"})
	assert.True(t, ledger.IsNotFound(err))
}

func TestSetAssortment(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	sku, err := svc.SetAssortment(ctx, "A1", false)
	require.NoError(t, err)
	assert.False(t, sku.InAssortment)

	// No-op when unchanged
	_, err = svc.SetAssortment(ctx, "A1", false)
	require.NoError(t, err)

	_, err = svc.SetAssortment(ctx, "A1", true)
	require.NoError(t, err)

	assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindAssortmentOut))
	assert.Equal(t, 1, countKind(t, svc, "A1", ledger.KindAssortmentIn))
}

func TestLogExport(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	e, err := svc.LogExport(ctx, "B2", "weekly order file")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindExportLog, e.Kind)
	assert.NotEmpty(t, e.ID)

	_, err = svc.LogExport(ctx, "ZZ", "")
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
}

func TestValidateEAN(t *testing.T) {
	tests := []struct {
		code   string
		status ledger.EANStatus
		ok     bool
	}{
		{"", ledger.EANEmpty, true},
		{"4006381333931", ledger.EANValid, true},  // EAN-13
		{"96385074", ledger.EANValid, true},       // EAN-8
		{"036000291452", ledger.EANValid, true},   // UPC-A
		{"10012345678902", ledger.EANValid, true}, // GTIN-14
		{"10012345678903", ledger.EANInvalid, false},
		{"4006381333932", ledger.EANInvalid, false},
		{"40063813339", ledger.EANInvalid, false},
		{"40063813339AB", ledger.EANInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, err := inventory.ValidateEAN(tt.code)
			assert.Equal(t, tt.status, status)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ledger.ErrValidation)
			}
		})
	}
}
