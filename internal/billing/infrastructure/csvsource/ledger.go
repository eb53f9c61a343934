package csvsource

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
)

// Ledger entry columns: date,account,item,amount[,ledger_account_id,ledger_year,rollup].
const (
	colLedgerDate = iota
	colLedgerAccountID
	colLedgerItem
	colLedgerAmount
	colLedgerLedgerAccount
	colLedgerYear
	colLedgerRollup

	minLedgerColumns = colLedgerAmount + 1
)

// ReadLedger parses ledger entries. A first row whose amount does not parse is a header.
func ReadLedger(r io.Reader) ([]billing.Event, error) {
	reader := newReader(r)
	var events []billing.Event
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		row = trimBOM(row, first)
		header := first
		first = false
		if len(row) < minLedgerColumns {
			return nil, &RowError{Line: line, Row: row, Err: fmt.Errorf("expected at least %d columns, got %d", minLedgerColumns, len(row))}
		}
		amount, err := parseAmount(row[colLedgerAmount])
		if err != nil {
			if header {
				continue
			}
			return nil, &RowError{Line: line, Row: row, Err: fmt.Errorf("amount: %q is not a number", row[colLedgerAmount])}
		}
		ev, err := parseLedger(row, amount)
		if err != nil {
			return nil, &RowError{Line: line, Row: row, Err: err}
		}
		events = append(events, ev)
	}
}

func parseLedger(row []string, amount decimal.Decimal) (billing.Event, error) {
	date, err := billing.ParseDate(strings.TrimSpace(row[colLedgerDate]))
	if err != nil {
		return billing.Event{}, err
	}
	l := billing.LedgerEvent{
		Date:      date,
		AccountID: strings.TrimSpace(row[colLedgerAccountID]),
		Item:      strings.TrimSpace(row[colLedgerItem]),
		Amount:    amount,
	}
	if l.LedgerAccount, err = optionalInt(row, colLedgerLedgerAccount, "ledger account"); err != nil {
		return billing.Event{}, err
	}
	if l.LedgerYear, err = optionalInt(row, colLedgerYear, "ledger year"); err != nil {
		return billing.Event{}, err
	}
	if len(row) > colLedgerRollup {
		l.Rollup = parseFlag(row[colLedgerRollup])
	}
	return billing.NewLedgerEvent(l)
}

// parseAmount accepts both "12.50" and "12,50".
func parseAmount(value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	return decimal.NewFromString(strings.Replace(value, ",", ".", 1))
}

func optionalInt(row []string, col int, field string) (billing.NullInt, error) {
	if len(row) <= col || strings.TrimSpace(row[col]) == "" {
		return billing.NullInt{}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(row[col]))
	if err != nil {
		return billing.NullInt{}, fmt.Errorf("%s: %q is not an integer", field, row[col])
	}
	return billing.Int(n), nil
}
