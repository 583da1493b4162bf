package inventory

import (
	"context"
	"errors"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// ORDER CONFIRMATION
// =============================================================================

type ConfirmOrderCommand struct {
	OrderID     string      `json:"order_id"` // Optional; derived from date, sku and lane when empty
	Date        ledger.Date `json:"date"`
	SKU         string      `json:"sku" validate:"required"`
	Qty         int         `json:"qty" validate:"gt=0"`
	ReceiptDate ledger.Date `json:"receipt_date"`
	Lane        int         `json:"lane" validate:"gte=0"`
	Note        string      `json:"note"`
}

type OrderResult struct {
	OrderID ledger.OrderID
	Outcome Outcome
	Event   ledger.Event // Zero when already processed
}

// Lane is one receipt-date line of a multi-lane confirmation.
type Lane struct {
	Qty         int         `json:"qty" validate:"gt=0"`
	ReceiptDate ledger.Date `json:"receipt_date"`
}

type ConfirmOrdersCommand struct {
	Date  ledger.Date `json:"date"`
	SKU   string      `json:"sku" validate:"required"`
	Lanes []Lane      `json:"lanes" validate:"min=1,dive"`
	Note  string      `json:"note"`
}

// ConfirmOrder records one ORDER event and its OrderLog entry. A known order
// id is reported as already processed.
func (s *Service) ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (OrderResult, error) {
	if err := s.check(cmd); err != nil {
		return OrderResult{}, err
	}
	id, err := s.orderID(cmd)
	if err != nil {
		return OrderResult{}, err
	}
	if err := checkReceiptDate(cmd.Date, cmd.ReceiptDate); err != nil {
		return OrderResult{}, err
	}

	var appended ledger.Event
	err = s.ledger.Commit(ctx, func(tx ledger.Store) error {
		e, err := s.appendOrder(ctx, tx, id, cmd.Date, cmd.SKU, cmd.Qty, cmd.ReceiptDate, cmd.Note)
		appended = e
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.metrics.OrdersDuplicate.Inc()
		s.log.Info().Str("order_id", id.String()).Msg("order already confirmed")
		return OrderResult{OrderID: id, Outcome: OutcomeAlreadyProcessed}, nil
	}
	if err != nil {
		return OrderResult{}, err
	}

	s.metrics.OrdersConfirmed.Inc()
	s.observe([]ledger.Event{appended})
	s.log.Info().
		Str("order_id", id.String()).
		Str("sku", cmd.SKU).
		Int("qty", cmd.Qty).
		Str("receipt_date", cmd.ReceiptDate.String()).
		Msg("order confirmed")
	return OrderResult{OrderID: id, Outcome: OutcomeApplied, Event: appended}, nil
}

// ConfirmOrders confirms several receipt-date lanes of one SKU ordered on
// the same day. Lane i gets the derived id with lane number i+1; lanes
// already confirmed are reported individually and the rest are written in
// one transaction.
func (s *Service) ConfirmOrders(ctx context.Context, cmd ConfirmOrdersCommand) ([]OrderResult, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	if err := requireDate("date", cmd.Date); err != nil {
		return nil, err
	}

	ids := make([]ledger.OrderID, len(cmd.Lanes))
	for i, lane := range cmd.Lanes {
		if err := checkReceiptDate(cmd.Date, lane.ReceiptDate); err != nil {
			return nil, err
		}
		id, err := ledger.NewOrderID(cmd.Date, cmd.SKU, i+1)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	var results []OrderResult
	err := s.ledger.Commit(ctx, func(tx ledger.Store) error {
		results = make([]OrderResult, 0, len(cmd.Lanes))
		for i, lane := range cmd.Lanes {
			e, err := s.appendOrder(ctx, tx, ids[i], cmd.Date, cmd.SKU, lane.Qty, lane.ReceiptDate, cmd.Note)
			switch {
			case errors.Is(err, errAlreadyProcessed):
				results = append(results, OrderResult{OrderID: ids[i], Outcome: OutcomeAlreadyProcessed})
			case err != nil:
				return err
			default:
				results = append(results, OrderResult{OrderID: ids[i], Outcome: OutcomeApplied, Event: e})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Outcome == OutcomeApplied {
			s.metrics.OrdersConfirmed.Inc()
			s.observe([]ledger.Event{r.Event})
		} else {
			s.metrics.OrdersDuplicate.Inc()
		}
	}
	s.log.Info().Str("sku", cmd.SKU).Int("lanes", len(cmd.Lanes)).Msg("order lanes confirmed")
	return results, nil
}

func (s *Service) appendOrder(ctx context.Context, tx ledger.Store, id ledger.OrderID, date ledger.Date, sku string, qty int, receiptDate ledger.Date, note string) (ledger.Event, error) {
	if _, err := tx.FindOrderLog(ctx, id); err == nil {
		return ledger.Event{}, errAlreadyProcessed
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Event{}, err
	}

	appended, err := tx.AppendEvents(ctx, []ledger.Event{{
		Date:        date,
		SKU:         sku,
		Kind:        ledger.KindOrder,
		Qty:         qty,
		ReceiptDate: receiptDate,
		Note:        note,
		Ref:         id.String(),
	}})
	if err != nil {
		return ledger.Event{}, err
	}

	err = tx.SaveOrderLog(ctx, ledger.OrderLog{
		OrderID:     id,
		Date:        date,
		SKU:         sku,
		Qty:         qty,
		ReceiptDate: receiptDate,
		Status:      ledger.OrderPending,
		CreatedAt:   s.now(),
	})
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return ledger.Event{}, errAlreadyProcessed
	}
	if err != nil {
		return ledger.Event{}, err
	}
	return appended[0], nil
}

func (s *Service) orderID(cmd ConfirmOrderCommand) (ledger.OrderID, error) {
	if err := requireDate("date", cmd.Date); err != nil {
		return ledger.OrderID{}, err
	}
	if cmd.OrderID != "" {
		return ledger.OrderIDFromString(cmd.OrderID)
	}
	lane := cmd.Lane
	if lane == 0 {
		lane = 1
	}
	return ledger.NewOrderID(cmd.Date, cmd.SKU, lane)
}

// checkReceiptDate rejects an expected arrival before the order day. A zero
// receipt date is allowed: the order then only counts in aggregate on_order.
func checkReceiptDate(orderDate, receiptDate ledger.Date) error {
	if !receiptDate.IsZero() && receiptDate.Before(orderDate) {
		return &ledger.ValidationError{Field: "receipt_date", Message: "must not be before the order date"}
	}
	return nil
}
