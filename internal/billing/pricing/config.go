package pricing

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	billing "pik-billing/internal/billing/domain"
)

//go:embed tables/*.yaml
var defaultTables embed.FS

var (
	// ErrNoTables is returned when a document declares no years.
	ErrNoTables = errors.New("pricing: no year tables")
	// ErrInvalidTable is returned for structurally invalid year tables.
	ErrInvalidTable = errors.New("pricing: invalid year table")
)

// Tables is the top-level price document.
type Tables struct {
	Years []YearTable `yaml:"years"`
}

// YearTable holds every price of one billing year. Rules built from it are
// tagged with the year as their ledger year.
type YearTable struct {
	Year       int             `yaml:"year"`
	Flights    []FlightEntry   `yaml:"flights"`
	Equipment  *EquipmentTable `yaml:"equipment"`
	Packages   []PackageEntry  `yaml:"packages"`
	Surcharges []FlightEntry   `yaml:"surcharges"`
	Notes      []string        `yaml:"notes"`
}

// FlightEntry prices one group of aircraft. With Tiers, the first matching
// tier wins; otherwise the entry itself is the only tier.
type FlightEntry struct {
	Aircraft []string `yaml:"aircraft"`
	Period   *Span    `yaml:"period"`
	Single   Tier     `yaml:",inline"`
	Tiers    []Tier   `yaml:"tiers"`
}

// Tier is one price alternative within a FlightEntry.
type Tier struct {
	// Package restricts the tier to accounts that bought the named package.
	Package       string   `yaml:"package"`
	Purposes      []string `yaml:"purposes"`
	InvoicingOnly bool     `yaml:"invoicing_only"`
	Rate          *Amount  `yaml:"rate"`
	Flat          *Amount  `yaml:"flat"`
	Description   string   `yaml:"description"`
	LedgerAccount int      `yaml:"ledger_account"`
}

// EquipmentTable is a per-hour equipment fee capped per aircraft group and in total.
type EquipmentTable struct {
	Rate          Amount           `yaml:"rate"`
	TotalCap      *Amount          `yaml:"total_cap"`
	Description   string           `yaml:"description"`
	LedgerAccount int              `yaml:"ledger_account"`
	Groups        []EquipmentGroup `yaml:"groups"`
}

// EquipmentGroup caps the equipment fee of a set of aircraft.
type EquipmentGroup struct {
	Category string   `yaml:"category"`
	Cap      Amount   `yaml:"cap"`
	Aircraft []string `yaml:"aircraft"`
}

// PackageEntry detects a package purchase from ledger item text.
type PackageEntry struct {
	Category    string `yaml:"category"`
	ItemPattern string `yaml:"item_pattern"`
}

// Amount is a decimal read from a YAML scalar.
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML parses the scalar without going through float64.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: amount must be a scalar", ErrInvalidTable, node.Line)
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("%w: line %d: amount %q", ErrInvalidTable, node.Line, node.Value)
	}
	a.Decimal = d
	return nil
}

// Span is an inclusive date range written as {start: YYYY-MM-DD, end: YYYY-MM-DD}.
type Span struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Period parses the span.
func (s Span) Period() (billing.Period, error) {
	start, err := billing.ParseDate(s.Start)
	if err != nil {
		return billing.Period{}, err
	}
	end, err := billing.ParseDate(s.End)
	if err != nil {
		return billing.Period{}, err
	}
	return billing.NewPeriod(start, end)
}

// Default returns the embedded price tables.
func Default() (Tables, error) {
	entries, err := defaultTables.ReadDir("tables")
	if err != nil {
		return Tables{}, err
	}
	var out Tables
	for _, entry := range entries {
		data, err := defaultTables.ReadFile("tables/" + entry.Name())
		if err != nil {
			return Tables{}, err
		}
		parsed, err := ParseTables(data)
		if err != nil {
			return Tables{}, fmt.Errorf("pricing: %s: %w", entry.Name(), err)
		}
		out.Years = append(out.Years, parsed.Years...)
	}
	sortYears(out.Years)
	return out, nil
}

// LoadTables reads price tables from path, or the embedded defaults when path is empty.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, err
	}
	return ParseTables(data)
}

// ParseTables decodes and validates a price document.
func ParseTables(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, err
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	sortYears(t.Years)
	return t, nil
}

// Validate compiles every year table and reports the first error.
func (t Tables) Validate() error {
	if len(t.Years) == 0 {
		return ErrNoTables
	}
	seen := make(map[int]struct{}, len(t.Years))
	for _, y := range t.Years {
		if y.Year < 1900 || y.Year > 9999 {
			return fmt.Errorf("%w: year %d", ErrInvalidTable, y.Year)
		}
		if _, dup := seen[y.Year]; dup {
			return fmt.Errorf("%w: year %d declared twice", ErrInvalidTable, y.Year)
		}
		seen[y.Year] = struct{}{}
		if _, err := buildYear(y); err != nil {
			return err
		}
	}
	return nil
}

// FirstYearStart is the first day covered by any year table.
func (t Tables) FirstYearStart() time.Time {
	if len(t.Years) == 0 {
		return time.Time{}
	}
	first := t.Years[0].Year
	for _, y := range t.Years[1:] {
		if y.Year < first {
			first = y.Year
		}
	}
	return billing.Date(first, time.January, 1)
}

func sortYears(years []YearTable) {
	sort.SliceStable(years, func(i, j int) bool { return years[i].Year < years[j].Year })
}
