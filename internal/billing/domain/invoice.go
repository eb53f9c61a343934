package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quantize rounds d to cents using banker's rounding.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// Producer identifies the rule that emitted an invoice line.
type Producer interface {
	// MultipleLedgerAccounts reports whether lines from this producer may legitimately
	// post to more than one ledger account for the same member.
	MultipleLedgerAccounts() bool
}

// InvoiceLine is one priced line produced by a rule for one event.
type InvoiceLine struct {
	AccountID     string
	Date          time.Time
	Item          string
	Price         decimal.Decimal
	Rule          Producer
	Event         Event
	LedgerAccount NullInt
	LedgerYear    NullInt
	Rollup        bool
}

// NewInvoiceLine builds a line with the price quantized to cents.
func NewInvoiceLine(accountID string, date time.Time, item string, price decimal.Decimal, rule Producer, event Event) InvoiceLine {
	return InvoiceLine{
		AccountID: accountID,
		Date:      ToDate(date),
		Item:      item,
		Price:     Quantize(price),
		Rule:      rule,
		Event:     event,
	}
}

// Clip returns a copy priced at price with suffix appended to the description.
func (l InvoiceLine) Clip(price decimal.Decimal, suffix string) InvoiceLine {
	l.Price = Quantize(price)
	l.Item += suffix
	return l
}

// LedgerYearOr returns the ledger year override, or fallback when unset.
func (l InvoiceLine) LedgerYearOr(fallback int) int {
	if l.LedgerYear.Valid {
		return l.LedgerYear.Int
	}
	return fallback
}

func (l InvoiceLine) String() string {
	return fmt.Sprintf("%s: %s <- %s", l.AccountID, l.Price.StringFixed(2), l.Item)
}

// Invoice is the set of lines billed to one account.
type Invoice struct {
	AccountID string
	Date      time.Time
	Lines     []InvoiceLine
}

// Total returns the exact sum of line prices rounded to cents.
func (i Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range i.Lines {
		total = total.Add(line.Price)
	}
	return Quantize(total)
}
