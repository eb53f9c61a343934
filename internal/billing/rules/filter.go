package rules

import (
	"fmt"
	"regexp"

	billing "pik-billing/internal/billing/domain"
)

// Filter is a side-effect free predicate over one event. A rule's filters are AND-ed.
type Filter interface {
	Match(state *billing.BillingContext, ev billing.Event) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(state *billing.BillingContext, ev billing.Event) bool

// Match calls f.
func (f FilterFunc) Match(state *billing.BillingContext, ev billing.Event) bool {
	return f(state, ev)
}

func matchAll(filters []Filter, state *billing.BillingContext, ev billing.Event) bool {
	for _, f := range filters {
		if !f.Match(state, ev) {
			return false
		}
	}
	return true
}

// mustFlight unwraps a flight event. Flight filters are only reachable from FlightRule,
// so a ledger event here is a rule construction bug.
func mustFlight(ev billing.Event, filter string) billing.FlightEvent {
	f, ok := ev.Flight()
	if !ok {
		panic(fmt.Sprintf("rules: %s applied to %s event", filter, ev.Kind()))
	}
	return f
}

func mustLedger(ev billing.Event, filter string) billing.LedgerEvent {
	l, ok := ev.Ledger()
	if !ok {
		panic(fmt.Sprintf("rules: %s applied to %s event", filter, ev.Kind()))
	}
	return l
}

// PeriodFilter matches events dated within an inclusive period.
type PeriodFilter struct {
	Period billing.Period
}

// InPeriod builds a PeriodFilter.
func InPeriod(p billing.Period) PeriodFilter { return PeriodFilter{Period: p} }

// Match implements Filter.
func (f PeriodFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	return f.Period.Contains(ev.Date())
}

// AircraftFilter matches flights flown with one of the listed registrations.
type AircraftFilter struct {
	codes map[string]struct{}
}

// Aircraft builds an AircraftFilter.
func Aircraft(codes ...string) AircraftFilter {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return AircraftFilter{codes: set}
}

// Match implements Filter.
func (f AircraftFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	_, ok := f.codes[mustFlight(ev, "aircraft filter").Aircraft]
	return ok
}

// PurposeFilter matches flights with one of the listed purposes.
type PurposeFilter struct {
	purposes map[billing.Purpose]struct{}
}

// Purposes builds a PurposeFilter.
func Purposes(purposes ...billing.Purpose) PurposeFilter {
	set := make(map[billing.Purpose]struct{}, len(purposes))
	for _, p := range purposes {
		set[p] = struct{}{}
	}
	return PurposeFilter{purposes: set}
}

// Match implements Filter.
func (f PurposeFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	_, ok := f.purposes[mustFlight(ev, "purpose filter").Purpose]
	return ok
}

// TransferTowFilter matches transfer tows.
type TransferTowFilter struct{}

// Match implements Filter.
func (TransferTowFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	return mustFlight(ev, "transfer tow filter").TransferTow
}

// InvoicingChargeFilter matches flights carrying an invoicing comment.
type InvoicingChargeFilter struct{}

// Match implements Filter.
func (InvoicingChargeFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	return mustFlight(ev, "invoicing charge filter").InvoicingComment != ""
}

// ItemFilter matches ledger events whose item text contains a match of a regular expression.
type ItemFilter struct {
	re *regexp.Regexp
}

// NewItemFilter compiles pattern.
func NewItemFilter(pattern string) (ItemFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ItemFilter{}, fmt.Errorf("rules: item filter: %w", err)
	}
	return ItemFilter{re: re}, nil
}

// MustItemFilter is NewItemFilter for patterns known at build time.
func MustItemFilter(pattern string) ItemFilter {
	f, err := NewItemFilter(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Match implements Filter.
func (f ItemFilter) Match(_ *billing.BillingContext, ev billing.Event) bool {
	return f.re.MatchString(mustLedger(ev, "item filter").Item)
}

// SinceDateFilter matches when a trigger date stored for the event's account is on
// or before the event date. Missing or unparseable values never match.
type SinceDateFilter struct {
	Variable billing.Variable
}

// Since builds a SinceDateFilter.
func Since(v billing.Variable) SinceDateFilter { return SinceDateFilter{Variable: v} }

// Match implements Filter.
func (f SinceDateFilter) Match(state *billing.BillingContext, ev billing.Event) bool {
	limit, ok := state.DateOf(ev.AccountID(), f.Variable)
	if !ok {
		return false
	}
	return !limit.After(ev.Date())
}

// NegationFilter inverts another filter.
type NegationFilter struct {
	Inner Filter
}

// Not builds a NegationFilter.
func Not(inner Filter) NegationFilter { return NegationFilter{Inner: inner} }

// Match implements Filter.
func (f NegationFilter) Match(state *billing.BillingContext, ev billing.Event) bool {
	return !f.Inner.Match(state, ev)
}
