package application

import (
	"sort"
	"strings"
	"time"

	billing "pik-billing/internal/billing/domain"
)

// AssembleOptions controls invoice grouping.
type AssembleOptions struct {
	// Date is the issue date stamped on every invoice.
	Date time.Time
	// ExcludePrefixes drops accounts whose id starts with any prefix, case-insensitively.
	ExcludePrefixes []string
}

// AssembleResult holds the invoices and the accounts left out of them.
type AssembleResult struct {
	Invoices []billing.Invoice
	Excluded []string
}

// AssembleInvoices groups lines by account into invoices ordered by account id.
// Each invoice's lines are sorted by date; lines on the same day keep their order.
func AssembleInvoices(lines []billing.InvoiceLine, opts AssembleOptions) AssembleResult {
	byAccount := make(map[string][]billing.InvoiceLine)
	for _, line := range lines {
		byAccount[line.AccountID] = append(byAccount[line.AccountID], line)
	}
	accounts := make([]string, 0, len(byAccount))
	for account := range byAccount {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	var result AssembleResult
	for _, account := range accounts {
		if excluded(account, opts.ExcludePrefixes) {
			result.Excluded = append(result.Excluded, account)
			continue
		}
		accountLines := byAccount[account]
		sort.SliceStable(accountLines, func(i, j int) bool {
			return accountLines[i].Date.Before(accountLines[j].Date)
		})
		result.Invoices = append(result.Invoices, billing.Invoice{
			AccountID: account,
			Date:      billing.ToDate(opts.Date),
			Lines:     accountLines,
		})
	}
	return result
}

func excluded(account string, prefixes []string) bool {
	lower := strings.ToLower(account)
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
