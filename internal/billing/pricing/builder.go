// Package pricing turns declarative per-year price tables into rule trees.
//
// Past years are never edited: a new billing year is a new YearTable, and
// Build keeps every earlier subtree so old invoices stay reproducible.
package pricing

import (
	"errors"
	"fmt"
	"time"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/billing/rules"
)

// EquipmentTemplate describes equipment fee lines when a table gives no description.
const EquipmentTemplate = "Kalustomaksu, {{.Aircraft}}, {{.Duration}} min"

// Build assembles the full rule tree: a passthrough for ledger events dated
// before the first table, then one subtree per year table in year order.
func Build(t Tables) (rules.Rule, error) {
	if len(t.Years) == 0 {
		return nil, ErrNoTables
	}
	past := billing.Period{
		Start: billing.Date(1, time.January, 1),
		End:   t.FirstYearStart().AddDate(0, 0, -1),
	}
	children := []rules.Rule{rules.NewSimpleRule(rules.InPeriod(past))}
	for _, y := range t.Years {
		subtree, err := buildYear(y)
		if err != nil {
			return nil, err
		}
		children = append(children, subtree)
	}
	return rules.All(children...), nil
}

type yearBuilder struct {
	year     int
	period   billing.Period
	packages map[billing.Category]struct{}
}

func buildYear(y YearTable) (rules.Rule, error) {
	b := &yearBuilder{
		year:     y.Year,
		period:   billing.FullYear(y.Year),
		packages: make(map[billing.Category]struct{}, len(y.Packages)),
	}
	for _, p := range y.Packages {
		category, err := billing.ParseCategory(p.Category)
		if err != nil {
			return nil, b.errorf("packages: %v", err)
		}
		b.packages[category] = struct{}{}
	}

	var children []rules.Rule
	for i, entry := range y.Flights {
		r, err := b.flightEntry(entry)
		if err != nil {
			return nil, b.errorf("flights[%d]: %v", i, err)
		}
		children = append(children, r)
	}
	if y.Equipment != nil {
		r, err := b.equipment(*y.Equipment)
		if err != nil {
			return nil, b.errorf("equipment: %v", err)
		}
		children = append(children, r)
	}
	ledger, err := b.ledger(y.Packages)
	if err != nil {
		return nil, b.errorf("packages: %v", err)
	}
	children = append(children, ledger)
	for i, entry := range y.Surcharges {
		r, err := b.flightEntry(entry)
		if err != nil {
			return nil, b.errorf("surcharges[%d]: %v", i, err)
		}
		children = append(children, r)
	}
	return rules.SetLedgerYear(y.Year, rules.All(children...)), nil
}

func (b *yearBuilder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: year %d: %s", ErrInvalidTable, b.year, fmt.Sprintf(format, args...))
}

func (b *yearBuilder) flightEntry(e FlightEntry) (rules.Rule, error) {
	if len(e.Aircraft) == 0 {
		return nil, errors.New("no aircraft")
	}
	period := b.period
	if e.Period != nil {
		p, err := e.Period.Period()
		if err != nil {
			return nil, err
		}
		period = p
	}
	tiers := e.Tiers
	if len(tiers) == 0 {
		tiers = []Tier{e.Single}
	} else if e.Single.Rate != nil || e.Single.Flat != nil {
		return nil, errors.New("price given both inline and in tiers")
	}

	built := make([]rules.Rule, 0, len(tiers))
	for i, tier := range tiers {
		r, err := b.tier(tier, rules.InPeriod(period), rules.Aircraft(e.Aircraft...))
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		built = append(built, r)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return rules.First(built...), nil
}

func (b *yearBuilder) tier(t Tier, filters ...rules.Filter) (rules.Rule, error) {
	var pricing rules.Pricing
	switch {
	case t.Rate != nil && t.Flat != nil:
		return nil, errors.New("both rate and flat")
	case t.Rate != nil:
		pricing = rules.Hourly(t.Rate.Decimal)
	case t.Flat != nil:
		pricing = rules.FlatFee(t.Flat.Decimal)
	default:
		return nil, errors.New("no rate or flat price")
	}
	if t.Package != "" {
		category, err := billing.ParseCategory(t.Package)
		if err != nil {
			return nil, err
		}
		if _, ok := b.packages[category]; !ok {
			return nil, fmt.Errorf("package %q is not declared for the year", t.Package)
		}
		filters = append(filters, rules.Since(billing.Var(category, b.year)))
	}
	if len(t.Purposes) > 0 {
		purposes := make([]billing.Purpose, 0, len(t.Purposes))
		for _, raw := range t.Purposes {
			p, err := billing.ParsePurpose(raw)
			if err != nil {
				return nil, err
			}
			purposes = append(purposes, p)
		}
		filters = append(filters, rules.Purposes(purposes...))
	}
	if t.InvoicingOnly {
		filters = append(filters, rules.InvoicingChargeFilter{})
	}
	return rules.NewFlightRule(pricing, ledgerAccount(t.LedgerAccount), t.Description, filters...)
}

func (b *yearBuilder) equipment(e EquipmentTable) (rules.Rule, error) {
	if len(e.Groups) == 0 {
		return nil, errors.New("no groups")
	}
	description := e.Description
	if description == "" {
		description = EquipmentTemplate
	}
	groups := make([]rules.Rule, 0, len(e.Groups))
	for _, g := range e.Groups {
		category, err := billing.ParseCategory(g.Category)
		if err != nil {
			return nil, err
		}
		if category == billing.CategoryEquipmentTotal {
			return nil, fmt.Errorf("group category %q is reserved for the total cap", g.Category)
		}
		if len(g.Aircraft) == 0 {
			return nil, fmt.Errorf("group %s: no aircraft", g.Category)
		}
		fee, err := rules.NewFlightRule(rules.Hourly(e.Rate.Decimal), ledgerAccount(e.LedgerAccount), description,
			rules.InPeriod(b.period), rules.Aircraft(g.Aircraft...))
		if err != nil {
			return nil, err
		}
		groups = append(groups, rules.Capped(billing.Var(category, b.year), g.Cap.Decimal, fee))
	}
	all := rules.All(groups...)
	if e.TotalCap == nil {
		return all, nil
	}
	return rules.Capped(billing.Var(billing.CategoryEquipmentTotal, b.year), e.TotalCap.Decimal, all), nil
}

// ledger passes the year's ledger events through, recording package purchases first.
func (b *yearBuilder) ledger(packages []PackageEntry) (rules.Rule, error) {
	inYear := rules.InPeriod(b.period)
	branches := make([]rules.Rule, 0, len(packages)+1)
	for _, p := range packages {
		category, err := billing.ParseCategory(p.Category)
		if err != nil {
			return nil, err
		}
		if p.ItemPattern == "" {
			return nil, fmt.Errorf("package %s: empty item pattern", p.Category)
		}
		item, err := rules.NewItemFilter(p.ItemPattern)
		if err != nil {
			return nil, err
		}
		branches = append(branches, rules.SetDate(billing.Var(category, b.year), rules.NewSimpleRule(inYear, item)))
	}
	branches = append(branches, rules.NewSimpleRule(inYear))
	if len(branches) == 1 {
		return branches[0], nil
	}
	return rules.First(branches...), nil
}

func ledgerAccount(id int) billing.NullInt {
	if id <= 0 {
		return billing.NullInt{}
	}
	return billing.Int(id)
}
