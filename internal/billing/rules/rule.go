// Package rules implements the composable rule algebra that prices billing events.
//
// A rule consumes one event and yields zero or more invoice lines. Leaf rules
// (SimpleRule, FlightRule) price one event variant and silently ignore the other.
// Combinators (AllRules, FirstRule) compose children; stateful wrappers
// (CappedRule, SetDateRule) read and update the run's BillingContext, which is
// passed explicitly into every call.
//
// Stateful wrappers are not idempotent: every event must be evaluated exactly
// once, in date order.
package rules

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
)

// Rule prices events.
type Rule interface {
	billing.Producer
	// Invoice returns the lines for ev, or none when the rule does not apply.
	// Errors are reserved for malformed input.
	Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error)
}

// SimpleRule passes ledger events through as invoice lines.
type SimpleRule struct {
	filters []Filter
}

// NewSimpleRule builds a SimpleRule.
func NewSimpleRule(filters ...Filter) *SimpleRule {
	return &SimpleRule{filters: filters}
}

// Invoice implements Rule.
func (r *SimpleRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	l, ok := ev.Ledger()
	if !ok || !matchAll(r.filters, state, ev) {
		return nil, nil
	}
	line := billing.NewInvoiceLine(l.AccountID, l.Date, l.Item, l.Amount, r, ev)
	line.LedgerAccount = l.LedgerAccount
	line.LedgerYear = l.LedgerYear
	line.Rollup = l.Rollup
	return []billing.InvoiceLine{line}, nil
}

// MultipleLedgerAccounts is true: the ledger account comes from each source event.
func (r *SimpleRule) MultipleLedgerAccounts() bool { return true }

func (r *SimpleRule) String() string { return "ledger entry" }

// Pricing computes the price of one flight.
type Pricing interface {
	Price(f billing.FlightEvent) decimal.Decimal
}

// HourlyRate prices a flight pro rata by its duration.
type HourlyRate struct {
	Rate decimal.Decimal
}

// Hourly builds an HourlyRate.
func Hourly(rate decimal.Decimal) HourlyRate { return HourlyRate{Rate: rate} }

var minutesPerHour = decimal.NewFromInt(60)

// Price returns rate * minutes / 60.
func (h HourlyRate) Price(f billing.FlightEvent) decimal.Decimal {
	return h.Rate.Mul(decimal.NewFromInt(int64(f.DurationMinutes))).Div(minutesPerHour)
}

// PriceFunc prices a flight directly.
type PriceFunc func(f billing.FlightEvent) decimal.Decimal

// Price calls p.
func (p PriceFunc) Price(f billing.FlightEvent) decimal.Decimal { return p(f) }

// FlatFee charges amount per flight regardless of duration.
func FlatFee(amount decimal.Decimal) PriceFunc {
	return func(billing.FlightEvent) decimal.Decimal { return amount }
}

// FlightRule prices flight events.
type FlightRule struct {
	pricing       Pricing
	ledgerAccount billing.NullInt
	filters       []Filter
	description   *Description
}

// NewFlightRule builds a FlightRule. An empty template uses DefaultFlightTemplate.
func NewFlightRule(pricing Pricing, ledgerAccount billing.NullInt, template string, filters ...Filter) (*FlightRule, error) {
	if pricing == nil {
		return nil, errors.New("flight rule: nil pricing")
	}
	desc, err := NewDescription(template)
	if err != nil {
		return nil, fmt.Errorf("flight rule: template %q: %w", template, err)
	}
	return &FlightRule{pricing: pricing, ledgerAccount: ledgerAccount, filters: filters, description: desc}, nil
}

// Invoice implements Rule.
func (r *FlightRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	f, ok := ev.Flight()
	if !ok || !matchAll(r.filters, state, ev) {
		return nil, nil
	}
	item, err := r.description.Render(f)
	if err != nil {
		return nil, fmt.Errorf("flight rule: describe %s: %w", ev, err)
	}
	line := billing.NewInvoiceLine(f.AccountID, f.Date, item, r.pricing.Price(f), r, ev)
	line.LedgerAccount = r.ledgerAccount
	return []billing.InvoiceLine{line}, nil
}

// MultipleLedgerAccounts is false: all lines post to the rule's ledger account.
func (r *FlightRule) MultipleLedgerAccounts() bool { return false }

func (r *FlightRule) String() string { return r.description.String() }
