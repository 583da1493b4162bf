package inventory

import (
	"context"
	"errors"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// DAILY EXCEPTIONS - WASTE, ADJUST, UNFULFILLED
// =============================================================================

type ExceptionCommand struct {
	Date ledger.Date `json:"date"`
	SKU  string      `json:"sku" validate:"required"`
	Kind ledger.Kind `json:"kind" validate:"required,oneof=WASTE ADJUST UNFULFILLED"`
	Qty  int         `json:"qty"`
	Note string      `json:"note"`
}

type ExceptionResult struct {
	Key     ledger.ExceptionKey
	Outcome Outcome
	Event   ledger.Event
}

type RevertResult struct {
	Key     ledger.ExceptionKey
	Removed int
}

// RecordException appends one exception event under its (date, sku, kind)
// key. Under PolicyReject a key that already has events is reported as
// already processed.
func (s *Service) RecordException(ctx context.Context, cmd ExceptionCommand) (ExceptionResult, error) {
	if err := s.check(cmd); err != nil {
		return ExceptionResult{}, err
	}
	key, err := ledger.NewExceptionKey(cmd.Date, cmd.SKU, cmd.Kind)
	if err != nil {
		return ExceptionResult{}, err
	}
	if err := checkExceptionQty(cmd.Kind, cmd.Qty); err != nil {
		return ExceptionResult{}, err
	}

	var appended ledger.Event
	err = s.ledger.Commit(ctx, func(tx ledger.Store) error {
		if s.policy == PolicyReject {
			existing, err := tx.ReadEvents(ctx, exceptionFilter(key))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return errAlreadyProcessed
			}
		}
		out, err := tx.AppendEvents(ctx, []ledger.Event{{
			Date: key.Date,
			SKU:  key.SKU,
			Kind: key.Kind,
			Qty:  cmd.Qty,
			Note: cmd.Note,
			Ref:  key.String(),
		}})
		if err != nil {
			return err
		}
		appended = out[0]
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.log.Info().Str("key", key.String()).Msg("exception already recorded")
		return ExceptionResult{Key: key, Outcome: OutcomeAlreadyProcessed}, nil
	}
	if err != nil {
		return ExceptionResult{}, err
	}

	s.metrics.ExceptionsRecorded.WithLabelValues(string(key.Kind)).Inc()
	s.observe([]ledger.Event{appended})
	s.log.Info().Str("key", key.String()).Int("qty", cmd.Qty).Msg("exception recorded")
	return ExceptionResult{Key: key, Outcome: OutcomeApplied, Event: appended}, nil
}

// RevertExceptionDay removes every event recorded under the exact key. It is
// the only operation that takes events out of the ledger.
func (s *Service) RevertExceptionDay(ctx context.Context, date ledger.Date, sku string, kind ledger.Kind) (RevertResult, error) {
	key, err := ledger.NewExceptionKey(date, sku, kind)
	if err != nil {
		return RevertResult{}, err
	}

	var removed int
	err = s.ledger.Commit(ctx, func(tx ledger.Store) error {
		if _, err := tx.ReadSKU(ctx, key.SKU); err != nil {
			return err
		}
		n, err := tx.RemoveExceptionEvents(ctx, key)
		removed = n
		return err
	})
	if err != nil {
		return RevertResult{}, err
	}

	s.metrics.ExceptionsReverted.Add(float64(removed))
	s.log.Info().Str("key", key.String()).Int("removed", removed).Msg("exception day reverted")
	return RevertResult{Key: key, Removed: removed}, nil
}

// ExceptionEvents lists the events currently recorded under key.
func (s *Service) ExceptionEvents(ctx context.Context, key ledger.ExceptionKey) ([]ledger.Event, error) {
	return s.ledger.Store().ReadEvents(ctx, exceptionFilter(key))
}

func exceptionFilter(key ledger.ExceptionKey) ledger.EventFilter {
	return ledger.EventFilter{
		SKU:    key.SKU,
		From:   key.Date,
		Before: key.Date.AddDays(1),
		Kinds:  []ledger.Kind{key.Kind},
	}
}

// WASTE and UNFULFILLED are magnitudes; ADJUST carries its own sign.
func checkExceptionQty(kind ledger.Kind, qty int) error {
	if kind == ledger.KindAdjust {
		if qty == 0 {
			return &ledger.ValidationError{Field: "qty", Message: "must not be zero"}
		}
		return nil
	}
	if qty <= 0 {
		return &ledger.ValidationError{Field: "qty", Message: "must be greater than 0"}
	}
	return nil
}
