package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	KindFlight EventKind = iota + 1
	KindLedger
)

func (k EventKind) String() string {
	switch k {
	case KindFlight:
		return "flight"
	case KindLedger:
		return "ledger"
	default:
		return "unknown"
	}
}

// NullInt is an optional integer.
type NullInt struct {
	Int   int
	Valid bool
}

// Int returns a valid NullInt holding v.
func Int(v int) NullInt { return NullInt{Int: v, Valid: true} }

func (n NullInt) String() string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%d", n.Int)
}

// FlightEvent is a logged flight.
type FlightEvent struct {
	Date             time.Time
	AccountID        string
	Aircraft         string
	TakeoffTime      string
	LandingTime      string
	Purpose          Purpose
	DurationMinutes  int
	InvoicingComment string
	TransferTow      bool

	Captain         string
	Student         string
	Persons         int
	TakeoffLocation string
	LandingLocation string
	Landings        int
	ExtraComments   string
}

// LedgerEvent is a manual ledger entry or an incoming payment.
type LedgerEvent struct {
	Date          time.Time
	AccountID     string
	Item          string
	Amount        decimal.Decimal
	LedgerAccount NullInt
	LedgerYear    NullInt
	// Rollup marks a synthetic prior-balance entry that counts in totals but is never exported to the ledger.
	Rollup bool
}

// Event is a tagged union of FlightEvent and LedgerEvent. The zero value is invalid.
type Event struct {
	kind   EventKind
	flight FlightEvent
	ledger LedgerEvent
}

// NewFlightEvent validates f and wraps it as an Event.
func NewFlightEvent(f FlightEvent) (Event, error) {
	if f.AccountID == "" {
		return Event{}, ErrEmptyAccountID
	}
	if f.Date.IsZero() {
		return Event{}, ErrInvalidDate
	}
	if f.DurationMinutes < 0 {
		return Event{}, ErrNegativeDuration
	}
	purpose, err := ParsePurpose(string(f.Purpose))
	if err != nil {
		return Event{}, err
	}
	f.Purpose = purpose
	f.Date = ToDate(f.Date)
	return Event{kind: KindFlight, flight: f}, nil
}

// NewLedgerEvent validates l and wraps it as an Event. The amount is quantized to cents.
func NewLedgerEvent(l LedgerEvent) (Event, error) {
	if l.AccountID == "" {
		return Event{}, ErrEmptyAccountID
	}
	if l.Date.IsZero() {
		return Event{}, ErrInvalidDate
	}
	l.Amount = Quantize(l.Amount)
	l.Date = ToDate(l.Date)
	return Event{kind: KindLedger, ledger: l}, nil
}

// Kind returns the variant tag.
func (e Event) Kind() EventKind { return e.kind }

// Flight returns the flight variant.
func (e Event) Flight() (FlightEvent, bool) {
	return e.flight, e.kind == KindFlight
}

// Ledger returns the ledger variant.
func (e Event) Ledger() (LedgerEvent, bool) {
	return e.ledger, e.kind == KindLedger
}

// Date returns the event date.
func (e Event) Date() time.Time {
	switch e.kind {
	case KindFlight:
		return e.flight.Date
	case KindLedger:
		return e.ledger.Date
	}
	return time.Time{}
}

// AccountID returns the member account the event belongs to.
func (e Event) AccountID() string {
	switch e.kind {
	case KindFlight:
		return e.flight.AccountID
	case KindLedger:
		return e.ledger.AccountID
	}
	return ""
}

func (e Event) String() string {
	switch e.kind {
	case KindFlight:
		f := e.flight
		return fmt.Sprintf("Flight(%s, %s, %s, %s, %d min)", FormatDate(f.Date), f.Aircraft, f.AccountID, f.Purpose, f.DurationMinutes)
	case KindLedger:
		l := e.ledger
		return fmt.Sprintf("Ledger(%s, %s, %q, %s)", FormatDate(l.Date), l.AccountID, l.Item, l.Amount.StringFixed(2))
	}
	return "Event(invalid)"
}
