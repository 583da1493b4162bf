package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// LEGACY MIGRATION
// =============================================================================
//
// Seeds an empty ledger from a flat stock snapshot of a previous system.
//
//   1. Any event in the ledger  -> skipped (reported, not an error)
//   2. Missing SKU masters are created
//   3. One SNAPSHOT per record, dated at the reference date, in one commit
//   4. Verify CalculateAsOf(sku, ref+1) == legacy on hand for every SKU
//
// Reference date: the supplied one, else the latest record AsOf, else today.

// LegacyRecord is one row of the previous system's stock table. OnHand is
// textual because exports carry values like "12.000".
type LegacyRecord struct {
	SKU         string      `json:"sku" validate:"required"`
	Description string      `json:"description"`
	EAN         string      `json:"ean"`
	OnHand      string      `json:"on_hand" validate:"required"`
	AsOf        ledger.Date `json:"asof"`
}

type Mismatch struct {
	SKU      string
	Expected int
	Got      int
}

type MigrationResult struct {
	Skipped     bool
	Reason      string
	RefDate     ledger.Date
	Migrated    int
	CreatedSKUs []string
	Mismatches  []Mismatch
}

// Verified reports whether every migrated SKU replays to its legacy value.
func (r MigrationResult) Verified() bool { return !r.Skipped && len(r.Mismatches) == 0 }

// MigrateLegacy seeds the ledger. Re-running it after a successful run is a
// reported no-op.
func (s *Service) MigrateLegacy(ctx context.Context, records []LegacyRecord, refDate ledger.Date) (MigrationResult, error) {
	quantities := make(map[string]int, len(records))
	for i, r := range records {
		if err := s.check(r); err != nil {
			return MigrationResult{}, fmt.Errorf("record %d: %w", i+1, err)
		}
		code := strings.TrimSpace(r.SKU)
		if _, dup := quantities[code]; dup {
			return MigrationResult{}, &ledger.ValidationError{Field: "sku", Message: fmt.Sprintf("duplicate legacy record for %s", code)}
		}
		qty, err := parseOnHand(r.OnHand)
		if err != nil {
			return MigrationResult{}, fmt.Errorf("record %d (%s): %w", i+1, code, err)
		}
		quantities[code] = qty
	}
	ref := s.inferRefDate(records, refDate)

	result := MigrationResult{RefDate: ref}
	var appended []ledger.Event
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		count, err := tx.CountEvents(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return errAlreadyProcessed
		}

		events := make([]ledger.Event, 0, len(records))
		for _, r := range records {
			code := strings.TrimSpace(r.SKU)
			created, err := s.ensureSKU(ctx, tx, code, r)
			if err != nil {
				return err
			}
			if created {
				result.CreatedSKUs = append(result.CreatedSKUs, code)
			}
			events = append(events, ledger.Event{
				Date: ref,
				SKU:  code,
				Kind: ledger.KindSnapshot,
				Qty:  quantities[code],
				Note: "legacy migration",
				Ref:  "migration:" + ref.String(),
			})
		}
		appended, err = tx.AppendEvents(ctx, events)
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.metrics.MigrationRuns.WithLabelValues("skipped").Inc()
		s.log.Info().Msg("ledger not empty, legacy migration skipped")
		return MigrationResult{Skipped: true, Reason: "ledger already contains events", RefDate: ref}, nil
	}
	if err != nil {
		s.metrics.MigrationRuns.WithLabelValues("failed").Inc()
		return MigrationResult{}, fmt.Errorf("legacy migration: %w", err)
	}
	result.Migrated = len(appended)
	s.observe(appended)

	verifyAt := ref.AddDays(1)
	for _, r := range records {
		code := strings.TrimSpace(r.SKU)
		stock, err := s.ledger.CalculateAsOf(ctx, code, verifyAt)
		if err != nil {
			return result, fmt.Errorf("verify %s: %w", code, err)
		}
		if stock.OnHand != quantities[code] {
			result.Mismatches = append(result.Mismatches, Mismatch{SKU: code, Expected: quantities[code], Got: stock.OnHand})
		}
	}

	outcome := "verified"
	if len(result.Mismatches) > 0 {
		outcome = "mismatch"
		s.log.Error().Int("mismatches", len(result.Mismatches)).Msg("legacy migration verification failed")
	}
	s.metrics.MigrationRuns.WithLabelValues(outcome).Inc()
	s.log.Info().
		Str("ref_date", ref.String()).
		Int("migrated", result.Migrated).
		Int("created_skus", len(result.CreatedSKUs)).
		Msg("legacy migration complete")
	return result, nil
}

func (s *Service) ensureSKU(ctx context.Context, tx ledger.Store, code string, r LegacyRecord) (bool, error) {
	_, err := tx.ReadSKU(ctx, code)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ledger.ErrUnknownSKU) {
		return false, err
	}
	status, eanErr := ValidateEAN(r.EAN)
	if eanErr != nil {
		s.log.Warn().Str("sku", code).Err(eanErr).Msg("legacy sku has invalid ean")
	}
	return true, tx.SaveSKU(ctx, ledger.SKU{
		Code:              code,
		Description:       r.Description,
		EAN:               strings.TrimSpace(r.EAN),
		EANStatus:         status,
		DemandVariability: ledger.DefaultDemandCategory,
		InAssortment:      true,
	})
}

func (s *Service) inferRefDate(records []LegacyRecord, supplied ledger.Date) ledger.Date {
	if !supplied.IsZero() {
		return supplied
	}
	var latest ledger.Date
	for _, r := range records {
		if r.AsOf.After(latest) {
			latest = r.AsOf
		}
	}
	if !latest.IsZero() {
		return latest
	}
	return s.today()
}

// parseOnHand accepts integral decimals ("12", "12.000").
func parseOnHand(s string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, &ledger.ValidationError{Field: "on_hand", Message: fmt.Sprintf("not a number: %q", s)}
	}
	if !d.IsInteger() {
		return 0, &ledger.ValidationError{Field: "on_hand", Message: fmt.Sprintf("must be a whole quantity: %s", d.String())}
	}
	return int(d.IntPart()), nil
}
