package pricing

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/billing/rules"
)

func defaultRules(t *testing.T) rules.Rule {
	t.Helper()
	tables, err := Default()
	require.NoError(t, err)
	tree, err := Build(tables)
	require.NoError(t, err)
	return tree
}

func flightEvent(t *testing.T, date, aircraft, purpose string, minutes int) billing.Event {
	t.Helper()
	d, err := billing.ParseDate(date)
	require.NoError(t, err)
	ev, err := billing.NewFlightEvent(billing.FlightEvent{
		Date: d, AccountID: "1234", Aircraft: aircraft, Purpose: billing.Purpose(purpose), DurationMinutes: minutes,
	})
	require.NoError(t, err)
	return ev
}

func ledgerEvent(t *testing.T, date, item, amount string) billing.Event {
	t.Helper()
	d, err := billing.ParseDate(date)
	require.NoError(t, err)
	ev, err := billing.NewLedgerEvent(billing.LedgerEvent{
		Date: d, AccountID: "1234", Item: item, Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return ev
}

func invoice(t *testing.T, tree rules.Rule, state *billing.BillingContext, ev billing.Event) []billing.InvoiceLine {
	t.Helper()
	lines, err := tree.Invoice(state, ev)
	require.NoError(t, err)
	return lines
}

func TestDefaultTablesLoad(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	require.Len(t, tables.Years, 1)
	assert.Equal(t, 2014, tables.Years[0].Year)
	assert.Equal(t, billing.Date(2014, 1, 1), tables.FirstYearStart())
}

func TestGliderPackageUnlock(t *testing.T) {
	tree := defaultRules(t)
	state := billing.NewBillingContext()

	lines := invoice(t, tree, state, flightEvent(t, "2014-03-01", "650", "YLE", 60))
	require.Len(t, lines, 2)
	assert.Equal(t, "15.00", lines[0].Price.StringFixed(2))
	assert.Equal(t, "Lento, 650, 60 min", lines[0].Item)
	assert.Equal(t, "Kalustomaksu, 650, 60 min", lines[1].Item)
	assert.Equal(t, billing.Int(2014), lines[0].LedgerYear)

	lines = invoice(t, tree, state, ledgerEvent(t, "2014-03-05", "Pursikönttä 2014", "900"))
	require.Len(t, lines, 1)
	assert.Equal(t, "900.00", lines[0].Price.StringFixed(2))
	date, ok := state.DateOf("1234", billing.Var(billing.CategoryGliderPackage, 2014))
	require.True(t, ok)
	assert.Equal(t, billing.Date(2014, 3, 5), date)

	lines = invoice(t, tree, state, flightEvent(t, "2014-03-10", "650", "YLE", 120))
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Price.IsZero())
	assert.Equal(t, "Lento, pursiköntällä, 650, 120 min", lines[0].Item)
	assert.Equal(t, "20.00", lines[1].Price.StringFixed(2))
}

func TestCoursePackageRate(t *testing.T) {
	tree := defaultRules(t)
	state := billing.NewBillingContext()

	invoice(t, tree, state, ledgerEvent(t, "2014-05-02", "Kurssikönttä", "450"))
	lines := invoice(t, tree, state, flightEvent(t, "2014-05-03", "883", "KOU", 60))
	require.Len(t, lines, 3)
	assert.Equal(t, "17.00", lines[0].Price.StringFixed(2))
	assert.Equal(t, "Lento, kurssiköntällä, 883, 60 min, KOU", lines[0].Item)
	assert.Equal(t, "Koululentomaksu, 883", lines[1].Item)
	assert.Equal(t, "5.00", lines[1].Price.StringFixed(2))
	assert.Equal(t, "Kalustomaksu, 883, 60 min", lines[2].Item)
}

func TestEquipmentFeeCaps(t *testing.T) {
	tree := defaultRules(t)
	state := billing.NewBillingContext()

	equipment := decimal.Zero
	for i := 0; i < 10; i++ {
		for _, aircraft := range []string{"650", "DDS"} {
			for _, line := range invoice(t, tree, state, flightEvent(t, "2014-06-01", aircraft, "YLE", 60)) {
				if strings.HasPrefix(line.Item, "Kalustomaksu") {
					equipment = equipment.Add(line.Price)
				}
			}
		}
	}
	assert.Equal(t, "90", equipment.String())
	assert.Equal(t, "90", state.Amount("1234", billing.Var(billing.CategoryEquipmentTotal, 2014)).String())
}

func TestTowOverlapChargesBothRatesInFirstQuarter(t *testing.T) {
	tree := defaultRules(t)
	state := billing.NewBillingContext()

	lines := invoice(t, tree, state, flightEvent(t, "2014-02-01", "TOW", "HIN", 60))
	require.Len(t, lines, 3)
	assert.Equal(t, "146.00", lines[0].Price.StringFixed(2))
	assert.Equal(t, "104.00", lines[1].Price.StringFixed(2))

	lines = invoice(t, tree, state, flightEvent(t, "2014-06-01", "TOW", "SII", 30))
	require.Len(t, lines, 2)
	assert.Equal(t, "62.00", lines[0].Price.StringFixed(2))
}

func TestInvoicingSurchargeComesLast(t *testing.T) {
	tree := defaultRules(t)
	ev, err := billing.NewFlightEvent(billing.FlightEvent{
		Date: billing.Date(2014, 7, 1), AccountID: "1234", Aircraft: "DDS", Purpose: "MAT",
		DurationMinutes: 30, InvoicingComment: "lasku kotiin",
	})
	require.NoError(t, err)

	lines := invoice(t, tree, billing.NewBillingContext(), ev)
	require.Len(t, lines, 3)
	assert.Equal(t, "85.50", lines[0].Price.StringFixed(2))
	assert.Equal(t, "Laskutuslisä, DDS, lasku kotiin", lines[2].Item)
	assert.Equal(t, "2.00", lines[2].Price.StringFixed(2))
}

func TestPastLedgerEventsPassThrough(t *testing.T) {
	tree := defaultRules(t)
	state := billing.NewBillingContext()

	lines := invoice(t, tree, state, ledgerEvent(t, "2013-11-30", "Saldo 2013", "-42.50"))
	require.Len(t, lines, 1)
	assert.False(t, lines[0].LedgerYear.Valid)

	assert.Empty(t, invoice(t, tree, state, flightEvent(t, "2015-01-02", "650", "YLE", 60)))
	assert.Empty(t, invoice(t, tree, state, ledgerEvent(t, "2015-01-02", "Maksu", "10")))
}

func TestParseTablesRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"empty":        "years: []",
		"undeclared":   "years:\n  - year: 2015\n    flights:\n      - aircraft: [\"650\"]\n        package: pursikönttä\n        rate: 0\n",
		"both prices":  "years:\n  - year: 2015\n    flights:\n      - aircraft: [DDS]\n        rate: 1\n        flat: 2\n",
		"no price":     "years:\n  - year: 2015\n    flights:\n      - aircraft: [DDS]\n",
		"bad amount":   "years:\n  - year: 2015\n    flights:\n      - aircraft: [DDS]\n        rate: abc\n",
		"bad category": "years:\n  - year: 2015\n    packages:\n      - category: pursikonta\n        item_pattern: x\n",
		"bad purpose":  "years:\n  - year: 2015\n    flights:\n      - aircraft: [DDS]\n        purposes: [XXX]\n        rate: 1\n",
		"duplicate":    "years:\n  - year: 2015\n  - year: 2015\n",
		"bad template": "years:\n  - year: 2015\n    flights:\n      - aircraft: [DDS]\n        rate: 1\n        description: \"{{.Tail}}\"\n",
		"total group":  "years:\n  - year: 2015\n    equipment:\n      rate: 1\n      groups:\n        - category: kalustomaksu_total\n          cap: 1\n          aircraft: [DDS]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTables([]byte(doc))
			require.Error(t, err)
			if name == "empty" {
				assert.True(t, errors.Is(err, ErrNoTables))
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTable), "got %v", err)
		})
	}
}
