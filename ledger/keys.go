package ledger

import (
	"fmt"
	"strings"
)

// =============================================================================
// IDEMPOTENCY KEYS - Deterministic, auditable identifiers
// =============================================================================
//
// Each key type is built only through its constructors so the format rules
// live in one place. The rendered strings are persisted and must not change:
//
//   ReceiptKey   supplied id, or "{YYYY-MM-DD}_{origin}_{sku}"
//   OrderID      supplied id, or "{YYYY-MM-DD}_{sku}_{lane:03d}"
//   ExceptionKey "{YYYY-MM-DD}_{sku}_{KIND}"

const keySep = "_"

// ReceiptKey guards a receiving closure.
type ReceiptKey struct {
	value string
}

// ReceiptKeyFromID wraps an externally supplied receipt/document id.
func ReceiptKeyFromID(id string) (ReceiptKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ReceiptKey{}, &ValidationError{Field: "receipt_id", Message: "must not be empty"}
	}
	return ReceiptKey{value: id}, nil
}

// CompositeReceiptKey derives the key used when no receipt id is supplied.
func CompositeReceiptKey(receiptDate Date, origin, sku string) (ReceiptKey, error) {
	if receiptDate.IsZero() {
		return ReceiptKey{}, &ValidationError{Field: "receipt_date", Message: "must be set"}
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ReceiptKey{}, &ValidationError{Field: "sku", Message: "must not be empty"}
	}
	origin = strings.TrimSpace(origin)
	return ReceiptKey{value: receiptDate.String() + keySep + origin + keySep + sku}, nil
}

func (k ReceiptKey) String() string { return k.value }
func (k ReceiptKey) IsZero() bool   { return k.value == "" }

// OrderID identifies a confirmed order line.
type OrderID struct {
	value string
}

// NewOrderID derives the id of the lane-th order line for sku on date.
// Lanes start at 1.
func NewOrderID(date Date, sku string, lane int) (OrderID, error) {
	if date.IsZero() {
		return OrderID{}, &ValidationError{Field: "date", Message: "must be set"}
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return OrderID{}, &ValidationError{Field: "sku", Message: "must not be empty"}
	}
	if lane < 1 {
		return OrderID{}, &ValidationError{Field: "lane", Message: "must be >= 1"}
	}
	return OrderID{value: fmt.Sprintf("%s%s%s%s%03d", date, keySep, sku, keySep, lane)}, nil
}

// OrderIDFromString wraps a supplied or persisted order id.
func OrderIDFromString(id string) (OrderID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return OrderID{}, &ValidationError{Field: "order_id", Message: "must not be empty"}
	}
	return OrderID{value: id}, nil
}

func (o OrderID) String() string { return o.value }
func (o OrderID) IsZero() bool   { return o.value == "" }

// ExceptionKey scopes daily exceptions and their revert.
type ExceptionKey struct {
	Date Date
	SKU  string
	Kind Kind
}

func NewExceptionKey(date Date, sku string, kind Kind) (ExceptionKey, error) {
	if date.IsZero() {
		return ExceptionKey{}, &ValidationError{Field: "date", Message: "must be set"}
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ExceptionKey{}, &ValidationError{Field: "sku", Message: "must not be empty"}
	}
	if !kind.IsException() {
		return ExceptionKey{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("%s is not an exception kind", kind)}
	}
	return ExceptionKey{Date: date, SKU: sku, Kind: kind}, nil
}

// ParseExceptionKey reverses String. The SKU may itself contain the
// separator, so the date is read from the front and the kind from the back.
func ParseExceptionKey(s string) (ExceptionKey, error) {
	if len(s) < len(DateLayout)+2 || s[len(DateLayout)] != keySep[0] {
		return ExceptionKey{}, &ValidationError{Field: "exception_key", Message: fmt.Sprintf("malformed key %q", s)}
	}
	date, err := ParseDate(s[:len(DateLayout)])
	if err != nil {
		return ExceptionKey{}, err
	}
	rest := s[len(DateLayout)+1:]
	i := strings.LastIndex(rest, keySep)
	if i <= 0 {
		return ExceptionKey{}, &ValidationError{Field: "exception_key", Message: fmt.Sprintf("malformed key %q", s)}
	}
	return NewExceptionKey(date, rest[:i], Kind(rest[i+1:]))
}

func (k ExceptionKey) String() string {
	return k.Date.String() + keySep + k.SKU + keySep + string(k.Kind)
}

// Matches reports whether e falls under the key.
func (k ExceptionKey) Matches(e Event) bool {
	return e.Date.Equal(k.Date) && e.SKU == k.SKU && e.Kind == k.Kind
}
