package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/observability/metrics"
)

type producer struct {
	name     string
	multiple bool
}

func (p *producer) MultipleLedgerAccounts() bool { return p.multiple }
func (p *producer) String() string { return p.name }

func line(account, date, item, price string, rule billing.Producer, ledgerAccount int) billing.InvoiceLine {
	d, _ := billing.ParseDate(date)
	l := billing.NewInvoiceLine(account, d, item, decimal.RequireFromString(price), rule, billing.Event{})
	if ledgerAccount > 0 {
		l.LedgerAccount = billing.Int(ledgerAccount)
	}
	return l
}

func TestCheckLedgerConsistency(t *testing.T) {
	flights := &producer{name: "flights"}
	ledgerEntries := &producer{name: "ledger entry", multiple: true}

	violations := CheckLedgerConsistency([]billing.InvoiceLine{
		line("1", "2014-01-01", "a", "10", flights, 3000),
		line("1", "2014-01-02", "b", "-5", flights, 3000),
		line("2", "2014-01-01", "c", "10", flights, 3000),
		line("2", "2014-01-02", "d", "0", flights, 3010),
		line("2", "2014-01-03", "e", "10", flights, 0),
		line("3", "2014-01-01", "f", "10", ledgerEntries, 1910),
		line("3", "2014-01-02", "g", "20", ledgerEntries, 1920),
		line("4", "2014-01-01", "h", "10", flights, 3000),
		line("4", "2014-01-02", "i", "0", flights, 3000),
	})
	require.Len(t, violations, 2)
	assert.Equal(t, "1", violations[0].AccountID)
	assert.Equal(t, metrics.ViolationMixedSign, violations[0].Reason)
	assert.Equal(t, "2", violations[1].AccountID)
	assert.Equal(t, metrics.ViolationMixedAccount, violations[1].Reason)
	assert.Equal(t, "2: mixed_ledger_account in 3 lines from flights", violations[1].String())
	assert.Equal(t, []string{"1", "2"}, FlaggedAccounts(violations))
}

func TestBuildTransactions(t *testing.T) {
	flights := &producer{name: "flights"}
	ledgerEntries := &producer{name: "ledger entry", multiple: true}

	payment := line("1", "2014-02-01", "Maksu", "-100", ledgerEntries, 1910)
	rollup := line("1", "2014-01-01", "Saldo", "40", ledgerEntries, 1910)
	rollup.Rollup = true
	refund := line("2", "2014-03-01", "Hyvitys", "-10", flights, 3000)
	refund.LedgerYear = billing.Int(2013)

	result := BuildTransactions([]billing.InvoiceLine{
		line("1", "2014-01-10", "Lento, 650, 60 min", "15", flights, 3000),
		line("1", "2014-01-11", "Lento, 650, 30 min", "7.5", flights, 3000),
		payment,
		rollup,
		line("1", "2014-01-12", "Ilman tiliä", "3", flights, 0),
		line("1", "2014-01-12", "Ilmainen", "0", flights, 0),
		line("2", "2014-03-01", "Lento", "10", flights, 3000),
		refund,
		line("3", "2014-03-01", "Nolla", "10", flights, 3000),
		line("3", "2014-03-02", "Nolla", "-10", flights, 3000),
	}, TransactionOptions{FirstID: 500, EntryDate: billing.Date(2014, 6, 1)})

	require.Len(t, result.Unposted, 1)
	assert.Equal(t, "Ilman tiliä", result.Unposted[0].Item)

	txns := result.Transactions
	require.Len(t, txns, 4)
	for i, txn := range txns {
		assert.Equal(t, 500+i, txn.ID)
		assert.True(t, txn.Balanced(), txn.String())
		require.Len(t, txn.Legs, 2)
	}

	charge := txns[0]
	assert.Equal(t, "1 / Lento, 650, 60 min ym.", charge.Title)
	assert.Equal(t, 2014, charge.Year)
	assert.Equal(t, billing.Date(2014, 6, 1), charge.Date)
	assert.Equal(t, billing.DefaultDebtAccount, charge.Legs[0].Account)
	assert.Equal(t, billing.Debit, charge.Legs[0].Side)
	assert.Equal(t, "22.50", charge.Legs[0].Amount.StringFixed(2))
	assert.Equal(t, 3000, charge.Legs[1].Account)
	assert.Equal(t, billing.Credit, charge.Legs[1].Side)

	pay := txns[1]
	assert.Equal(t, "1 / Maksu", pay.Title)
	assert.Equal(t, billing.Credit, pay.Legs[0].Side)
	assert.Equal(t, 1910, pay.Legs[1].Account)
	assert.Equal(t, billing.Debit, pay.Legs[1].Side)
	assert.Equal(t, "100.00", pay.Legs[1].Amount.StringFixed(2))

	assert.Equal(t, 2014, txns[2].Year)
	assert.Equal(t, 2013, txns[3].Year)
	assert.Equal(t, billing.Date(2013, 12, 31), txns[3].Date)
}

func TestBuildTransactionsCustomDebtAccount(t *testing.T) {
	result := BuildTransactions([]billing.InvoiceLine{
		line("1", "2014-01-10", "Lento", "15", &producer{name: "flights"}, 3000),
	}, TransactionOptions{DebtAccount: 1423, EntryDate: billing.Date(2014, 6, 1)})
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, 1423, result.Transactions[0].Legs[0].Account)
}
