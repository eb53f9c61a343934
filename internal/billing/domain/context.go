package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category names a per-account context variable family.
type Category string

const (
	CategoryGliderPackage   Category = "pursikönttä"
	CategoryCoursePackage   Category = "kurssikönttä"
	CategoryEquipmentTotal  Category = "kalustomaksu_total"
	CategoryEquipmentGlider Category = "kalustomaksu_pursi"
	CategoryEquipmentMotor  Category = "kalustomaksu_moottori"
)

var knownCategories = map[Category]struct{}{
	CategoryGliderPackage:   {},
	CategoryCoursePackage:   {},
	CategoryEquipmentTotal:  {},
	CategoryEquipmentGlider: {},
	CategoryEquipmentMotor:  {},
}

// ParseCategory validates a category name.
func ParseCategory(value string) (Category, error) {
	c := Category(value)
	if _, ok := knownCategories[c]; !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidVariable, value)
	}
	return c, nil
}

// Variable is a typed context key: a category scoped to a billing year.
// Year 0 means the variable is not year scoped.
type Variable struct {
	Category Category
	Year     int
}

// Var builds a year scoped variable.
func Var(category Category, year int) Variable {
	return Variable{Category: category, Year: year}
}

// String renders the snapshot key, e.g. "pursikönttä_2015".
func (v Variable) String() string {
	if v.Year == 0 {
		return string(v.Category)
	}
	return string(v.Category) + "_" + strconv.Itoa(v.Year)
}

// ParseVariable parses a snapshot key produced by Variable.String.
func ParseVariable(value string) (Variable, error) {
	name := value
	year := 0
	if idx := strings.LastIndex(value, "_"); idx > 0 {
		suffix := value[idx+1:]
		if len(suffix) == 4 {
			if parsed, err := strconv.Atoi(suffix); err == nil {
				name = value[:idx]
				year = parsed
			}
		}
	}
	category, err := ParseCategory(name)
	if err != nil {
		return Variable{}, err
	}
	return Variable{Category: category, Year: year}, nil
}

type contextKey struct {
	accountID string
	variable  Variable
}

type contextValue struct {
	amount decimal.Decimal
	text   string
	isText bool
}

// BillingContext holds the per-(account, variable) state of one billing run:
// numeric accumulators for caps and ISO-8601 trigger dates for packages.
// It is owned by exactly one run and is not safe for concurrent use.
type BillingContext struct {
	values   map[contextKey]contextValue
	replayed bool
}

// NewBillingContext returns an empty context.
func NewBillingContext() *BillingContext {
	return &BillingContext{values: make(map[contextKey]contextValue)}
}

// Amount returns the accumulator for (accountID, v), zero when unset or not numeric.
func (c *BillingContext) Amount(accountID string, v Variable) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	val, ok := c.values[contextKey{accountID, v}]
	if !ok || val.isText {
		return decimal.Zero
	}
	return val.amount
}

// SetAmount overwrites the accumulator for (accountID, v).
func (c *BillingContext) SetAmount(accountID string, v Variable, amount decimal.Decimal) {
	c.values[contextKey{accountID, v}] = contextValue{amount: amount}
}

// DateOf returns the trigger date stored under (accountID, v).
// A missing or unparseable value yields ok == false.
func (c *BillingContext) DateOf(accountID string, v Variable) (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}
	val, ok := c.values[contextKey{accountID, v}]
	if !ok || !val.isText {
		return time.Time{}, false
	}
	date, err := ParseDate(val.text)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// SetDate stores date as an ISO-8601 string under (accountID, v), replacing any prior value.
func (c *BillingContext) SetDate(accountID string, v Variable, date time.Time) {
	c.values[contextKey{accountID, v}] = contextValue{text: FormatDate(date), isText: true}
}

// MarkReplayed records that an event stream has been replayed against the context.
// A context can be replayed once; a second call returns ErrContextReplayed.
func (c *BillingContext) MarkReplayed() error {
	if c.replayed {
		return ErrContextReplayed
	}
	c.replayed = true
	return nil
}

// Len returns the number of stored values.
func (c *BillingContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// ContextEntry is a flattened context value, used by row oriented stores.
type ContextEntry struct {
	AccountID string
	Variable  string
	Value     string
	IsDate    bool
}

// Entries returns all values ordered by account and variable.
func (c *BillingContext) Entries() []ContextEntry {
	if c == nil {
		return nil
	}
	out := make([]ContextEntry, 0, len(c.values))
	for key, val := range c.values {
		entry := ContextEntry{AccountID: key.accountID, Variable: key.variable.String(), IsDate: val.isText}
		if val.isText {
			entry.Value = val.text
		} else {
			entry.Value = val.amount.String()
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}

// Restore loads one flattened entry into the context.
func (c *BillingContext) Restore(entry ContextEntry) error {
	v, err := ParseVariable(entry.Variable)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	key := contextKey{entry.AccountID, v}
	if entry.IsDate {
		c.values[key] = contextValue{text: entry.Value, isText: true}
		return nil
	}
	amount, err := decimal.NewFromString(entry.Value)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidSnapshot, entry.AccountID, entry.Variable, err)
	}
	c.values[key] = contextValue{amount: amount}
	return nil
}

// MarshalJSON encodes the snapshot as {account_id: {variable_id: number | "YYYY-MM-DD"}}.
func (c *BillingContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]json.RawMessage)
	for _, entry := range c.Entries() {
		vars, ok := out[entry.AccountID]
		if !ok {
			vars = make(map[string]json.RawMessage)
			out[entry.AccountID] = vars
		}
		if entry.IsDate {
			raw, err := json.Marshal(entry.Value)
			if err != nil {
				return nil, err
			}
			vars[entry.Variable] = raw
		} else {
			vars[entry.Variable] = json.RawMessage(entry.Value)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a snapshot written by MarshalJSON into an empty context.
func (c *BillingContext) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	c.values = make(map[contextKey]contextValue)
	c.replayed = false
	for accountID, vars := range raw {
		for name, value := range vars {
			value = bytes.TrimSpace(value)
			entry := ContextEntry{AccountID: accountID, Variable: name}
			if len(value) > 0 && value[0] == '"' {
				var text string
				if err := json.Unmarshal(value, &text); err != nil {
					return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
				}
				entry.Value = text
				entry.IsDate = true
			} else {
				entry.Value = string(value)
			}
			if err := c.Restore(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
