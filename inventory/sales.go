package inventory

import (
	"context"
	"errors"

	"github.com/warp/stock-ledger/ledger"
)

type SalesResult struct {
	Outcome Outcome
	Record  ledger.SalesRecord
	// Delta is the SALE quantity appended: the new daily total minus the
	// previously recorded one.
	Delta int
}

// RecordDailySales upserts the daily aggregate and appends a SALE event for
// the change versus the previous figure, so the ledger and the sales table
// agree after corrections. Re-sending the same figure changes nothing.
func (s *Service) RecordDailySales(ctx context.Context, date ledger.Date, sku string, qty int) (SalesResult, error) {
	if err := requireDate("date", date); err != nil {
		return SalesResult{}, err
	}
	if sku == "" {
		return SalesResult{}, &ledger.ValidationError{Field: "sku", Message: "must not be empty"}
	}
	if qty < 0 {
		return SalesResult{}, &ledger.ValidationError{Field: "qty_sold", Message: "must not be negative"}
	}

	record := ledger.SalesRecord{Date: date, SKU: sku, QtySold: qty}
	var result SalesResult
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		if _, err := tx.ReadSKU(ctx, sku); err != nil {
			return err
		}
		previous, err := tx.ReadSales(ctx, sku, date, date.AddDays(1))
		if err != nil {
			return err
		}
		prior, existed := 0, len(previous) > 0
		if existed {
			prior = previous[0].QtySold
		}
		delta := qty - prior
		if existed && delta == 0 {
			return errAlreadyProcessed
		}

		if err := tx.UpsertSales(ctx, []ledger.SalesRecord{record}); err != nil {
			return err
		}
		result = SalesResult{Outcome: OutcomeApplied, Record: record, Delta: delta}
		if delta == 0 {
			return nil
		}
		_, err = tx.AppendEvents(ctx, []ledger.Event{{
			Date: date,
			SKU:  sku,
			Kind: ledger.KindSale,
			Qty:  delta,
			Ref:  "sales:" + date.String() + "_" + sku,
		}})
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		return SalesResult{Outcome: OutcomeAlreadyProcessed, Record: record}, nil
	}
	if err != nil {
		return SalesResult{}, err
	}
	if result.Delta != 0 {
		s.metrics.ObserveAppended(string(ledger.KindSale))
	}
	return result, nil
}
