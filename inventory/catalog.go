package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// SKU ADMINISTRATION
// =============================================================================
//
// SKU master data is configuration: it is saved in place, not replayed. The
// administrative kinds (SKU_EDIT, ASSORTMENT_IN/OUT, EXPORT_LOG) leave an
// audit trail in the ledger without any stock effect.

type SKUInput struct {
	Code              string                `json:"sku" validate:"required"`
	Description       string                `json:"description"`
	EAN               string                `json:"ean"`
	LeadTimeDays      int                   `json:"lead_time_days" validate:"gte=0"`
	SafetyStock       int                   `json:"safety_stock" validate:"gte=0"`
	MinShelfLifeDays  int                   `json:"min_shelf_life_days" validate:"gte=0"`
	MOQ               int                   `json:"moq" validate:"gte=0"`
	DemandVariability ledger.DemandCategory `json:"demand_variability"`
	InAssortment      *bool                 `json:"in_assortment"`
}

type SKUResult struct {
	SKU ledger.SKU
	// Warnings never block the operation (invalid EAN).
	Warnings []string
}

// CreateSKU registers a new SKU. An invalid EAN is stored with
// EANStatus=invalid and reported as a warning.
func (s *Service) CreateSKU(ctx context.Context, in SKUInput) (SKUResult, error) {
	if err := s.check(in); err != nil {
		return SKUResult{}, err
	}
	sku, warnings, err := s.buildSKU(in, ledger.SKU{InAssortment: true, DemandVariability: ledger.DefaultDemandCategory})
	if err != nil {
		return SKUResult{}, err
	}

	err = s.ledger.Commit(ctx, func(tx ledger.Store) error {
		if _, err := tx.ReadSKU(ctx, sku.Code); err == nil {
			return &ledger.ValidationError{Field: "sku", Message: fmt.Sprintf("%s already exists", sku.Code)}
		} else if !errors.Is(err, ledger.ErrUnknownSKU) {
			return err
		}
		return tx.SaveSKU(ctx, sku)
	})
	if err != nil {
		return SKUResult{}, err
	}

	s.log.Info().Str("sku", sku.Code).Str("ean_status", string(sku.EANStatus)).Msg("sku created")
	return SKUResult{SKU: sku, Warnings: warnings}, nil
}

// UpdateSKU replaces the master data of an existing SKU and appends a
// SKU_EDIT event listing the changed fields.
func (s *Service) UpdateSKU(ctx context.Context, in SKUInput) (SKUResult, error) {
	in.Code = strings.TrimSpace(in.Code)
	if err := s.check(in); err != nil {
		return SKUResult{}, err
	}

	var result SKUResult
	var appended []ledger.Event
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		current, err := tx.ReadSKU(ctx, in.Code)
		if err != nil {
			return err
		}
		sku, warnings, err := s.buildSKU(in, current)
		if err != nil {
			return err
		}
		if err := tx.SaveSKU(ctx, sku); err != nil {
			return err
		}
		changed := diffSKU(current, sku)
		if len(changed) > 0 {
			appended, err = tx.AppendEvents(ctx, []ledger.Event{{
				Date: s.today(),
				SKU:  sku.Code,
				Kind: ledger.KindSKUEdit,
				Note: "changed: " + strings.Join(changed, ", "),
			}})
			if err != nil {
				return err
			}
		}
		result = SKUResult{SKU: sku, Warnings: warnings}
		return nil
	})
	if err != nil {
		return SKUResult{}, err
	}

	s.observe(appended)
	s.log.Info().Str("sku", result.SKU.Code).Msg("sku updated")
	return result, nil
}

// SetAssortment moves a SKU in or out of the active assortment.
func (s *Service) SetAssortment(ctx context.Context, code string, in bool) (ledger.SKU, error) {
	var sku ledger.SKU
	var appended []ledger.Event
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		var err error
		if sku, err = tx.ReadSKU(ctx, code); err != nil {
			return err
		}
		if sku.InAssortment == in {
			return nil
		}
		sku.InAssortment = in
		if err := tx.SaveSKU(ctx, sku); err != nil {
			return err
		}
		kind := ledger.KindAssortmentOut
		if in {
			kind = ledger.KindAssortmentIn
		}
		appended, err = tx.AppendEvents(ctx, []ledger.Event{{Date: s.today(), SKU: code, Kind: kind}})
		return err
	})
	if err != nil {
		return ledger.SKU{}, err
	}
	s.observe(appended)
	return sku, nil
}

// LogExport records that data for a SKU left the system (order export,
// report).
func (s *Service) LogExport(ctx context.Context, code, note string) (ledger.Event, error) {
	var appended []ledger.Event
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		var err error
		appended, err = tx.AppendEvents(ctx, []ledger.Event{{Date: s.today(), SKU: code, Kind: ledger.KindExportLog, Note: note}})
		return err
	})
	if err != nil {
		return ledger.Event{}, err
	}
	s.observe(appended)
	return appended[0], nil
}

// buildSKU applies input over base.
func (s *Service) buildSKU(in SKUInput, base ledger.SKU) (ledger.SKU, []string, error) {
	sku := base
	sku.Code = strings.TrimSpace(in.Code)
	sku.Description = in.Description
	sku.EAN = strings.TrimSpace(in.EAN)
	sku.LeadTimeDays = in.LeadTimeDays
	sku.SafetyStock = in.SafetyStock
	sku.MinShelfLifeDays = in.MinShelfLifeDays
	sku.MOQ = in.MOQ
	if in.DemandVariability != "" {
		category, err := ledger.ParseDemandCategory(string(in.DemandVariability))
		if err != nil {
			return ledger.SKU{}, nil, err
		}
		sku.DemandVariability = category
	}
	if in.InAssortment != nil {
		sku.InAssortment = *in.InAssortment
	}

	var warnings []string
	status, err := ValidateEAN(sku.EAN)
	sku.EANStatus = status
	if err != nil {
		warnings = append(warnings, err.Error())
		s.log.Warn().Str("sku", sku.Code).Str("ean", sku.EAN).Err(err).Msg("invalid ean")
	}
	return sku, warnings, nil
}

func diffSKU(a, b ledger.SKU) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("description", a.Description != b.Description)
	add("ean", a.EAN != b.EAN)
	add("lead_time_days", a.LeadTimeDays != b.LeadTimeDays)
	add("safety_stock", a.SafetyStock != b.SafetyStock)
	add("min_shelf_life_days", a.MinShelfLifeDays != b.MinShelfLifeDays)
	add("moq", a.MOQ != b.MOQ)
	add("demand_variability", a.DemandVariability != b.DemandVariability)
	add("in_assortment", a.InAssortment != b.InAssortment)
	return out
}
