package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	billing "pik-billing/internal/billing/domain"
)

// InvoiceRepository persists the invoices of the latest billing run.
// Stored lines keep their posting fields but not the producing rule or event.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// WriteInvoices replaces all stored invoices with those of runID.
func (r *InvoiceRepository) WriteInvoices(ctx context.Context, runID string, invoices []billing.Invoice) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_invoice_lines`); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_invoices`); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, inv := range invoices {
		if inv.AccountID == "" {
			_ = tx.Rollback()
			return billing.ErrEmptyAccountID
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO billing_invoices (
	account_id, run_id, invoice_date, total, created_at
) VALUES ($1,$2,$3,$4,NOW())`,
			inv.AccountID, runID, inv.Date, inv.Total())
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		for i, line := range inv.Lines {
			_, err := tx.ExecContext(ctx, `
INSERT INTO billing_invoice_lines (
	account_id, position, line_date, item, price, ledger_account, ledger_year, rollup
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				inv.AccountID, i, line.Date, line.Item, line.Price,
				nullInt(line.LedgerAccount), nullInt(line.LedgerYear), line.Rollup)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

// Get returns one stored invoice with its lines.
func (r *InvoiceRepository) Get(ctx context.Context, accountID string) (*billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	var inv billing.Invoice
	var date time.Time
	err := r.db.QueryRowContext(ctx, `
SELECT account_id, invoice_date
FROM billing_invoices
WHERE account_id = $1
LIMIT 1`, accountID).Scan(&inv.AccountID, &date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, err
	}
	inv.Date = billing.ToDate(date)
	lines, err := r.listLines(ctx, `WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines[accountID]
	return &inv, nil
}

// List returns all stored invoices ordered by account id.
func (r *InvoiceRepository) List(ctx context.Context) ([]billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT account_id, invoice_date
FROM billing_invoices
ORDER BY account_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Invoice
	for rows.Next() {
		var inv billing.Invoice
		var date time.Time
		if err := rows.Scan(&inv.AccountID, &date); err != nil {
			return nil, err
		}
		inv.Date = billing.ToDate(date)
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := r.listLines(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Lines = lines[result[i].AccountID]
	}
	return result, nil
}

func (r *InvoiceRepository) listLines(ctx context.Context, where string, args ...any) (map[string][]billing.InvoiceLine, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT account_id, line_date, item, price, ledger_account, ledger_year, rollup
FROM billing_invoice_lines `+where+`
ORDER BY account_id ASC, position ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]billing.InvoiceLine)
	for rows.Next() {
		var line billing.InvoiceLine
		var date time.Time
		var ledgerAccount, ledgerYear sql.NullInt64
		if err := rows.Scan(&line.AccountID, &date, &line.Item, &line.Price, &ledgerAccount, &ledgerYear, &line.Rollup); err != nil {
			return nil, err
		}
		line.Date = billing.ToDate(date)
		line.LedgerAccount = fromNullInt(ledgerAccount)
		line.LedgerYear = fromNullInt(ledgerYear)
		result[line.AccountID] = append(result[line.AccountID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullInt(n billing.NullInt) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n.Int), Valid: n.Valid}
}

func fromNullInt(n sql.NullInt64) billing.NullInt {
	if !n.Valid {
		return billing.NullInt{}
	}
	return billing.Int(int(n.Int64))
}
