package rules

import (
	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/observability/metrics"
)

// CappedSuffix is appended to the description of a clipped line.
const CappedSuffix = ", rajattu"

// AllRules concatenates the output of every child, in order.
type AllRules struct {
	children []Rule
}

// All builds an AllRules.
func All(children ...Rule) *AllRules { return &AllRules{children: children} }

// Invoice implements Rule.
func (r *AllRules) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	var out []billing.InvoiceLine
	for _, child := range r.children {
		lines, err := child.Invoice(state, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// MultipleLedgerAccounts implements billing.Producer.
func (r *AllRules) MultipleLedgerAccounts() bool { return false }

// FirstRule returns the output of the first child that yields any lines.
type FirstRule struct {
	children []Rule
}

// First builds a FirstRule.
func First(children ...Rule) *FirstRule { return &FirstRule{children: children} }

// Invoice implements Rule.
func (r *FirstRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	for _, child := range r.children {
		lines, err := child.Invoice(state, ev)
		if err != nil {
			return nil, err
		}
		if len(lines) > 0 {
			return lines, nil
		}
	}
	return nil, nil
}

// MultipleLedgerAccounts implements billing.Producer.
func (r *FirstRule) MultipleLedgerAccounts() bool { return false }

// CappedRule limits the cumulative price of inner's lines per account to limit.
// Lines past the cap are dropped; the line crossing it is clipped.
type CappedRule struct {
	variable billing.Variable
	limit    decimal.Decimal
	inner    Rule
}

// Capped builds a CappedRule.
func Capped(variable billing.Variable, limit decimal.Decimal, inner Rule) *CappedRule {
	return &CappedRule{variable: variable, limit: limit, inner: inner}
}

// Invoice implements Rule. It updates the accumulator for every line it lets through.
func (r *CappedRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	lines, err := r.inner.Invoice(state, ev)
	if err != nil {
		return nil, err
	}
	var out []billing.InvoiceLine
	for _, line := range lines {
		used := state.Amount(line.AccountID, r.variable)
		if used.GreaterThanOrEqual(r.limit) {
			metrics.IncCap(string(r.variable.Category), metrics.CapDropped)
			continue
		}
		if used.Add(line.Price).GreaterThan(r.limit) {
			line = line.Clip(r.limit.Sub(used), CappedSuffix)
			metrics.IncCap(string(r.variable.Category), metrics.CapClipped)
		}
		state.SetAmount(line.AccountID, r.variable, used.Add(line.Price))
		out = append(out, line)
	}
	return out, nil
}

// MultipleLedgerAccounts implements billing.Producer.
func (r *CappedRule) MultipleLedgerAccounts() bool { return false }

// SetDateRule records the event date under variable whenever inner yields lines.
type SetDateRule struct {
	variable billing.Variable
	inner    Rule
}

// SetDate builds a SetDateRule.
func SetDate(variable billing.Variable, inner Rule) *SetDateRule {
	return &SetDateRule{variable: variable, inner: inner}
}

// Invoice implements Rule.
func (r *SetDateRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	lines, err := r.inner.Invoice(state, ev)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		state.SetDate(ev.AccountID(), r.variable, ev.Date())
	}
	return lines, nil
}

// MultipleLedgerAccounts implements billing.Producer.
func (r *SetDateRule) MultipleLedgerAccounts() bool { return false }

// SetLedgerYearRule tags inner's lines with a ledger year unless they carry one.
type SetLedgerYearRule struct {
	year  int
	inner Rule
}

// SetLedgerYear builds a SetLedgerYearRule.
func SetLedgerYear(year int, inner Rule) *SetLedgerYearRule {
	return &SetLedgerYearRule{year: year, inner: inner}
}

// Invoice implements Rule.
func (r *SetLedgerYearRule) Invoice(state *billing.BillingContext, ev billing.Event) ([]billing.InvoiceLine, error) {
	lines, err := r.inner.Invoice(state, ev)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		if !lines[i].LedgerYear.Valid {
			lines[i].LedgerYear = billing.Int(r.year)
		}
	}
	return lines, nil
}

// MultipleLedgerAccounts implements billing.Producer.
func (r *SetLedgerYearRule) MultipleLedgerAccounts() bool { return false }
