package inventory

import (
	"context"
	"errors"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// RECEIPT CLOSURE
// =============================================================================
//
// Guard key:
//   ReceiptID supplied   -> one key for the whole closure
//   ReceiptID empty      -> one composite key per line: {date}_{origin}_{sku}
//
// Every RECEIPT event is dated on the closure's receipt date. Its
// ReceiptDate (the bucket it depletes) is the line's ExpectedDate when the
// goods arrive on a different day than the order said, else the receipt
// date itself.

type ReceiptLineInput struct {
	SKU          string      `json:"sku" validate:"required"`
	Qty          int         `json:"qty" validate:"gt=0"`
	ExpectedDate ledger.Date `json:"expected_date"`
}

type CloseReceiptCommand struct {
	ReceiptID   string             `json:"receipt_id"`
	ReceiptDate ledger.Date        `json:"receipt_date"`
	Origin      string             `json:"origin"`
	Lines       []ReceiptLineInput `json:"lines" validate:"min=1,dive"`
	Note        string             `json:"note"`
}

// KeyOutcome is the guard result for one receipt key.
type KeyOutcome struct {
	Key     ledger.ReceiptKey
	Outcome Outcome
}

type ReceiptResult struct {
	// Outcome is applied when at least one key was applied.
	Outcome Outcome
	Keys    []KeyOutcome
	Events  []ledger.Event
}

// receiptGroup is the set of lines guarded by one key.
type receiptGroup struct {
	key   ledger.ReceiptKey
	lines []ReceiptLineInput
}

// CloseReceipt appends one RECEIPT event per line and one ReceivingLog entry
// per key, skipping keys that were already closed.
func (s *Service) CloseReceipt(ctx context.Context, cmd CloseReceiptCommand) (ReceiptResult, error) {
	if err := s.check(cmd); err != nil {
		return ReceiptResult{}, err
	}
	if err := requireDate("receipt_date", cmd.ReceiptDate); err != nil {
		return ReceiptResult{}, err
	}
	groups, err := groupReceiptLines(cmd)
	if err != nil {
		return ReceiptResult{}, err
	}

	var result ReceiptResult
	err = s.ledger.Commit(ctx, func(tx ledger.Store) error {
		result = ReceiptResult{Outcome: OutcomeAlreadyProcessed}
		for _, g := range groups {
			events, err := s.closeGroup(ctx, tx, cmd, g)
			switch {
			case errors.Is(err, errAlreadyProcessed):
				result.Keys = append(result.Keys, KeyOutcome{Key: g.key, Outcome: OutcomeAlreadyProcessed})
			case err != nil:
				return err
			default:
				result.Keys = append(result.Keys, KeyOutcome{Key: g.key, Outcome: OutcomeApplied})
				result.Events = append(result.Events, events...)
				result.Outcome = OutcomeApplied
			}
		}
		if result.Outcome == OutcomeAlreadyProcessed {
			return errAlreadyProcessed
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.metrics.ReceiptsDuplicate.Inc()
		s.log.Info().Str("receipt_date", cmd.ReceiptDate.String()).Str("origin", cmd.Origin).Msg("receipt already closed")
		return result, nil
	}
	if err != nil {
		return ReceiptResult{}, err
	}

	for _, k := range result.Keys {
		if k.Outcome == OutcomeApplied {
			s.metrics.ReceiptsApplied.Inc()
		} else {
			s.metrics.ReceiptsDuplicate.Inc()
		}
	}
	s.observe(result.Events)
	s.log.Info().
		Str("receipt_date", cmd.ReceiptDate.String()).
		Str("origin", cmd.Origin).
		Int("events", len(result.Events)).
		Msg("receipt closed")
	return result, nil
}

func (s *Service) closeGroup(ctx context.Context, tx ledger.Store, cmd CloseReceiptCommand, g receiptGroup) ([]ledger.Event, error) {
	if _, err := tx.FindReceivingLog(ctx, g.key); err == nil {
		return nil, errAlreadyProcessed
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	events := make([]ledger.Event, len(g.lines))
	logLines := make([]ledger.ReceiptLine, len(g.lines))
	for i, line := range g.lines {
		bucket := line.ExpectedDate
		if bucket.IsZero() {
			bucket = cmd.ReceiptDate
		}
		events[i] = ledger.Event{
			Date:        cmd.ReceiptDate,
			SKU:         line.SKU,
			Kind:        ledger.KindReceipt,
			Qty:         line.Qty,
			ReceiptDate: bucket,
			Note:        cmd.Note,
			Ref:         g.key.String(),
		}
		logLines[i] = ledger.ReceiptLine{SKU: line.SKU, Qty: line.Qty}
	}

	appended, err := tx.AppendEvents(ctx, events)
	if err != nil {
		return nil, err
	}
	err = tx.SaveReceivingLog(ctx, ledger.ReceivingLog{
		Key:         g.key,
		ReceiptDate: cmd.ReceiptDate,
		Origin:      cmd.Origin,
		Lines:       logLines,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

// groupReceiptLines assigns every line to its guard key, keeping first-seen
// key order.
func groupReceiptLines(cmd CloseReceiptCommand) ([]receiptGroup, error) {
	if cmd.ReceiptID != "" {
		key, err := ledger.ReceiptKeyFromID(cmd.ReceiptID)
		if err != nil {
			return nil, err
		}
		return []receiptGroup{{key: key, lines: cmd.Lines}}, nil
	}

	var groups []receiptGroup
	index := make(map[string]int)
	for _, line := range cmd.Lines {
		key, err := ledger.CompositeReceiptKey(cmd.ReceiptDate, cmd.Origin, line.SKU)
		if err != nil {
			return nil, err
		}
		if i, ok := index[key.String()]; ok {
			groups[i].lines = append(groups[i].lines, line)
			continue
		}
		index[key.String()] = len(groups)
		groups = append(groups, receiptGroup{key: key, lines: []ReceiptLineInput{line}})
	}
	return groups, nil
}
