package application

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/observability/metrics"
)

// Violation flags an account whose lines from one rule cannot be exported as-is.
type Violation struct {
	AccountID string
	Rule      billing.Producer
	Reason    string
	Lines     []billing.InvoiceLine
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s in %d lines from %v", v.AccountID, v.Reason, len(v.Lines), v.Rule)
}

type ruleKey struct {
	accountID string
	rule      billing.Producer
}

// CheckLedgerConsistency verifies, per account and rule, that all line prices
// share a sign and that all set ledger accounts agree unless the rule allows
// several. Zero prices carry no sign.
func CheckLedgerConsistency(lines []billing.InvoiceLine) []Violation {
	groups := make(map[ruleKey][]billing.InvoiceLine)
	var order []ruleKey
	for _, line := range lines {
		key := ruleKey{accountID: line.AccountID, rule: line.Rule}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], line)
	}

	var out []Violation
	for _, key := range order {
		group := groups[key]
		var positive, negative bool
		for _, line := range group {
			switch line.Price.Sign() {
			case 1:
				positive = true
			case -1:
				negative = true
			}
		}
		if positive && negative {
			out = append(out, Violation{AccountID: key.accountID, Rule: key.rule, Reason: metrics.ViolationMixedSign, Lines: group})
			metrics.IncViolation(metrics.ViolationMixedSign)
		}
		if key.rule != nil && key.rule.MultipleLedgerAccounts() {
			continue
		}
		accounts := make(map[int]struct{})
		for _, line := range group {
			if line.LedgerAccount.Valid {
				accounts[line.LedgerAccount.Int] = struct{}{}
			}
		}
		if len(accounts) > 1 {
			out = append(out, Violation{AccountID: key.accountID, Rule: key.rule, Reason: metrics.ViolationMixedAccount, Lines: group})
			metrics.IncViolation(metrics.ViolationMixedAccount)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// FlaggedAccounts returns the distinct accounts named by violations, sorted.
func FlaggedAccounts(violations []Violation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range violations {
		if _, ok := seen[v.AccountID]; ok {
			continue
		}
		seen[v.AccountID] = struct{}{}
		out = append(out, v.AccountID)
	}
	sort.Strings(out)
	return out
}

// TransactionOptions controls ledger transaction generation.
type TransactionOptions struct {
	// DebtAccount is the member receivables account; defaults to billing.DefaultDebtAccount.
	DebtAccount int
	// FirstID numbers the first transaction; later ones follow sequentially.
	FirstID int
	// EntryDate is the bookkeeping entry date, normally the invoice date.
	EntryDate time.Time
}

// TransactionResult holds generated transactions and the lines that could not be posted.
type TransactionResult struct {
	Transactions []billing.LedgerTransaction
	// Unposted are non-rollup lines without a ledger account.
	Unposted []billing.InvoiceLine
}

type postingKey struct {
	accountID     string
	rule          billing.Producer
	ledgerAccount int
	year          int
}

// BuildTransactions groups lines by account, rule, ledger account and ledger year
// into balanced two-leg transactions. Rollup lines and groups netting to zero are skipped.
func BuildTransactions(lines []billing.InvoiceLine, opts TransactionOptions) TransactionResult {
	debtAccount := opts.DebtAccount
	if debtAccount == 0 {
		debtAccount = billing.DefaultDebtAccount
	}
	entryDate := billing.ToDate(opts.EntryDate)

	var result TransactionResult
	groups := make(map[postingKey][]billing.InvoiceLine)
	var order []postingKey
	for _, line := range lines {
		if line.Rollup {
			continue
		}
		if !line.LedgerAccount.Valid {
			if !line.Price.IsZero() {
				result.Unposted = append(result.Unposted, line)
			}
			continue
		}
		key := postingKey{
			accountID:     line.AccountID,
			rule:          line.Rule,
			ledgerAccount: line.LedgerAccount.Int,
			year:          line.LedgerYearOr(line.Date.Year()),
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], line)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].accountID < order[j].accountID })

	nextID := opts.FirstID
	for _, key := range order {
		group := groups[key]
		net := decimal.Zero
		for _, line := range group {
			net = net.Add(line.Price)
		}
		net = billing.Quantize(net)
		if net.IsZero() {
			continue
		}
		title := key.accountID + " / " + group[0].Item
		if len(group) > 1 {
			title += " ym."
		}
		amount := net.Abs()
		debtSide, ledgerSide := billing.Debit, billing.Credit
		if net.IsNegative() {
			debtSide, ledgerSide = billing.Credit, billing.Debit
		}
		result.Transactions = append(result.Transactions, billing.LedgerTransaction{
			ID:        nextID,
			Year:      key.year,
			EntryDate: entryDate,
			Date:      transactionDate(entryDate, key.year),
			Title:     title,
			Ref:       key.accountID,
			AccountID: key.accountID,
			Legs: []billing.LedgerLeg{
				{Account: debtAccount, Title: title, Side: debtSide, Amount: amount},
				{Account: key.ledgerAccount, Title: title, Side: ledgerSide, Amount: amount},
			},
		})
		nextID++
	}
	return result
}

// transactionDate keeps the entry date when it falls in the ledger year and
// otherwise books on the last day of that year.
func transactionDate(entryDate time.Time, year int) time.Time {
	if entryDate.Year() == year {
		return entryDate
	}
	return billing.Date(year, time.December, 31)
}
