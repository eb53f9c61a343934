// Package hansa writes ledger transactions in the Hansa row import format.
package hansa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	billing "pik-billing/internal/billing/domain"
)

const entryDateLayout = "02.01.2006"

var (
	// ErrUnbalanced is returned for a transaction whose debits and credits differ.
	ErrUnbalanced = errors.New("hansa: unbalanced transaction")
	// ErrInvalidLeg is returned for a leg without a side or with a negative amount.
	ErrInvalidLeg = errors.New("hansa: invalid leg")
)

// Encode renders transactions as CRLF terminated rows, one per leg, encoded ISO-8859-1.
// Text outside Latin-1 is transliterated.
func Encode(transactions []billing.LedgerTransaction) ([]byte, error) {
	var buf bytes.Buffer
	for _, txn := range transactions {
		if err := writeTransaction(&buf, txn); err != nil {
			return nil, err
		}
	}
	out, err := charmap.ISO8859_1.NewEncoder().String(latin1(buf.String()))
	if err != nil {
		return nil, fmt.Errorf("hansa: encode: %w", err)
	}
	return []byte(out), nil
}

var transliterations = strings.NewReplacer(
	"€", "EUR",
	"\u2013", "-", "\u2014", "-",
	"\u2018", "'", "\u2019", "'",
	"\u201c", "\"", "\u201d", "\"",
	"\u2026", "...",
)

// latin1 rewrites s so that every rune has an ISO-8859-1 byte. Runes without
// one fall back to their base letter, then to '?'.
func latin1(s string) string {
	s = transliterations.Replace(norm.NFC.String(s))
	return strings.Map(func(r rune) rune {
		if _, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			return r
		}
		base, _ := utf8.DecodeRuneInString(norm.NFD.String(string(r)))
		if _, ok := charmap.ISO8859_1.EncodeRune(base); ok {
			return base
		}
		return '?'
	}, s)
}

func writeTransaction(w io.Writer, txn billing.LedgerTransaction) error {
	if !txn.Balanced() {
		return fmt.Errorf("%w: %s", ErrUnbalanced, txn)
	}
	head := fmt.Sprintf("%d\t%d\t%s\t%s\t%s\t%s",
		txn.ID, txn.Year, txn.EntryDate.Format(entryDateLayout), field(txn.Title),
		txn.Date.Format(entryDateLayout), field(txn.Ref))
	for _, leg := range txn.Legs {
		if leg.Amount.IsNegative() {
			return fmt.Errorf("%w: %s: negative amount %s", ErrInvalidLeg, txn, leg.Amount)
		}
		var debit, credit string
		switch leg.Side {
		case billing.Debit:
			debit = amount(leg.Amount)
		case billing.Credit:
			credit = amount(leg.Amount)
		default:
			return fmt.Errorf("%w: %s: account %d has no side", ErrInvalidLeg, txn, leg.Account)
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t\t%s\t\t\t%s\t%s\t\t\t\t\t\r\n", head, leg.Account, field(leg.Title), debit, credit); err != nil {
			return err
		}
	}
	return nil
}

func amount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// field keeps free text on one row and inside one column.
func field(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\r', '\n':
			return ' '
		}
		return r
	}, s)
}

// FileWriter writes each run's transactions to one import file.
type FileWriter struct {
	path string
}

// NewFileWriter constructs a writer for path.
func NewFileWriter(path string) (*FileWriter, error) {
	if path == "" {
		return nil, errors.New("hansa writer: empty path")
	}
	return &FileWriter{path: path}, nil
}

// WriteTransactions implements application.LedgerWriter. Nothing is written when there are no transactions.
func (w *FileWriter) WriteTransactions(ctx context.Context, transactions []billing.LedgerTransaction) error {
	_ = ctx
	if len(transactions) == 0 {
		return nil
	}
	data, err := Encode(transactions)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(w.path, data, 0o644)
}
