package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDebtAccount is the bookkeeping account for member receivables.
const DefaultDebtAccount = 1422

// Side is the column a ledger leg posts to.
type Side int

const (
	Debit Side = iota + 1
	Credit
)

func (s Side) String() string {
	switch s {
	case Debit:
		return "debit"
	case Credit:
		return "credit"
	}
	return "unknown"
}

// LedgerLeg is one row of a double-entry transaction. Amount is never negative.
type LedgerLeg struct {
	Account int
	Title   string
	Side    Side
	Amount  decimal.Decimal
}

// LedgerTransaction is a balanced set of legs for one member, rule and ledger account.
type LedgerTransaction struct {
	ID        int
	Year      int
	EntryDate time.Time
	Date      time.Time
	Title     string
	Ref       string
	AccountID string
	Legs      []LedgerLeg
}

// Balanced reports whether debits equal credits.
func (t LedgerTransaction) Balanced() bool {
	debit, credit := decimal.Zero, decimal.Zero
	for _, leg := range t.Legs {
		switch leg.Side {
		case Debit:
			debit = debit.Add(leg.Amount)
		case Credit:
			credit = credit.Add(leg.Amount)
		}
	}
	return debit.Equal(credit)
}

func (t LedgerTransaction) String() string {
	return fmt.Sprintf("Transaction(%d, %d, %s, %q, %d legs)", t.ID, t.Year, FormatDate(t.Date), t.Title, len(t.Legs))
}
