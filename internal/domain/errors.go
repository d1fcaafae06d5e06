package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalid         = errors.New("invalid input")
	ErrTransient       = errors.New("temporarily unavailable")
	ErrFatal           = errors.New("ledger write failed")
	ErrUnauthenticated = errors.New("operator identity required")
)

type ConflictReason string

const (
	ConflictAlreadyUsed      ConflictReason = "already_used"
	ConflictPaymentPending   ConflictReason = "payment_pending"
	ConflictAlreadyProcessed ConflictReason = "already_processed"
	ConflictCancelled        ConflictReason = "cancelled"
)

// ConflictError is an expected, non-mutating negative outcome.
type ConflictError struct {
	Reason      ConflictReason
	ValidatedBy string
	ValidatedAt time.Time
}

func (e *ConflictError) Error() string {
	if e.Reason == ConflictAlreadyUsed && !e.ValidatedAt.IsZero() {
		return fmt.Sprintf("conflict: %s by %s at %s", e.Reason, e.ValidatedBy, e.ValidatedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("conflict: %s", e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrTransient
}

type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindTransient       ErrorKind = "transient"
	KindInvalid         ErrorKind = "invalid"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindFatal           ErrorKind = "fatal"
)

// KindOf classifies err into the error taxonomy. Anything unclassified is
// fatal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrTransient):
		return KindTransient
	}
	return KindFatal
}

// AsConflict returns the ConflictError wrapped in err, if any.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
