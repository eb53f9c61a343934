package billing

import "errors"

var (
	// ErrInvalidPurpose is returned when a flight purpose is not in the allowed set.
	ErrInvalidPurpose = errors.New("billing: invalid flight purpose")
	// ErrEmptyAccountID is returned when an event has no account id.
	ErrEmptyAccountID = errors.New("billing: empty account id")
	// ErrInvalidDate is returned when an event date is zero.
	ErrInvalidDate = errors.New("billing: invalid date")
	// ErrNegativeDuration is returned for flights with a negative duration.
	ErrNegativeDuration = errors.New("billing: negative duration")
	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("billing: period ends before start")
	// ErrContextReplayed is returned when a billing context is replayed a second time.
	ErrContextReplayed = errors.New("billing: context already replayed")
	// ErrInvalidSnapshot is returned when a persisted context snapshot cannot be decoded.
	ErrInvalidSnapshot = errors.New("billing: invalid context snapshot")
	// ErrInvalidVariable is returned for unknown or malformed context variable ids.
	ErrInvalidVariable = errors.New("billing: invalid context variable")
	// ErrInvoiceNotFound is returned when no stored invoice exists for an account.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
)
