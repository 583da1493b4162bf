/*
Package inventory implements the workflow operations that write to the
ledger: order confirmation, receipt closure, daily exceptions and their
revert, daily sales, SKU administration and the one-time legacy migration.

PURPOSE:
  The ledger package only knows how to store and replay events. This package
  decides WHICH events a business action produces and guards each action so
  that repeating it has effect at most once.

WRITE DISCIPLINE:
  Every operation runs inside ledger.Ledger.Commit: the idempotency check,
  the appended events and the audit log entry land together or not at all.
  A repeated key aborts the transaction and surfaces as
  OutcomeAlreadyProcessed, never as an error.

GUARDS:
  Receiving:  ReceivingLog keyed by ReceiptKey
  Orders:     OrderLog keyed by OrderID
  Exceptions: ExceptionKey (date, sku, kind); additive or reject policy,
              revert removes every event under the key
  Migration:  the ledger must be empty

CLOCK:
  Timestamps and "today" come from the injected Clock. The ledger
  projections never read the clock.

SEE ALSO:
  - ledger/engine.go: Commit and the read side
  - ean.go:          barcode validation (warning only)
*/
package inventory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/metrics"
)

// =============================================================================
// OUTCOMES AND POLICY
// =============================================================================

// Outcome reports whether a guarded operation changed the ledger.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// ExceptionPolicy decides what a second RecordException under the same key
// does.
type ExceptionPolicy string

const (
	// PolicyAdditive appends another event under the key. Revert removes
	// all of them.
	PolicyAdditive ExceptionPolicy = "additive"
	// PolicyReject reports the second call as already processed.
	PolicyReject ExceptionPolicy = "reject"
)

func ParseExceptionPolicy(s string) (ExceptionPolicy, error) {
	switch p := ExceptionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAdditive, PolicyReject:
		return p, nil
	case "":
		return PolicyAdditive, nil
	default:
		return "", &ledger.ValidationError{Field: "exception_policy", Message: fmt.Sprintf("unknown policy %q", s)}
	}
}

// errAlreadyProcessed aborts a Commit without mutating anything.
var errAlreadyProcessed = errors.New("already processed")

// =============================================================================
// SERVICE
// =============================================================================

// Clock returns the current instant.
type Clock func() time.Time

type Service struct {
	ledger   *ledger.Ledger
	clock    Clock
	log      zerolog.Logger
	metrics  *metrics.Registry
	validate *validator.Validate
	policy   ExceptionPolicy
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func WithExceptionPolicy(p ExceptionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:   l,
		clock:    time.Now,
		log:      zerolog.Nop(),
		metrics:  metrics.NewRegistry(),
		validate: newValidator(),
		policy:   PolicyAdditive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

func (s *Service) ExceptionPolicy() ExceptionPolicy { return s.policy }

func (s *Service) now() time.Time { return s.clock().UTC() }

func (s *Service) today() ledger.Date { return ledger.DateOf(s.clock()) }

func (s *Service) observe(events []ledger.Event) {
	for _, e := range events {
		s.metrics.ObserveAppended(string(e.Kind))
	}
}

// =============================================================================
// COMMAND VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// check runs struct tag validation and converts the first failure into a
// ledger.ValidationError.
func (s *Service) check(cmd any) error {
	err := s.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ledger.ValidationError{Field: fe.Field(), Message: describeTag(fe)}
	}
	return &ledger.ValidationError{Field: "command", Message: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func requireDate(field string, d ledger.Date) error {
	if d.IsZero() {
		return &ledger.ValidationError{Field: field, Message: "must be set"}
	}
	return nil
}
