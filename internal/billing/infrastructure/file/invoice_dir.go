package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	billing "pik-billing/internal/billing/domain"
)

// RenderFunc encodes one invoice.
type RenderFunc func(billing.Invoice) ([]byte, error)

// InvoiceDir writes one file per invoice, named <account>.<ext>.
type InvoiceDir struct {
	dir    string
	ext    string
	render RenderFunc
}

// NewInvoiceDir constructs a directory sink.
func NewInvoiceDir(dir, ext string, render RenderFunc) (*InvoiceDir, error) {
	if dir == "" {
		return nil, errors.New("invoice dir: empty directory")
	}
	if render == nil {
		return nil, errors.New("invoice dir: nil renderer")
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return nil, errors.New("invoice dir: empty extension")
	}
	return &InvoiceDir{dir: dir, ext: ext, render: render}, nil
}

// WriteInvoices implements application.InvoiceSink.
func (d *InvoiceDir) WriteInvoices(ctx context.Context, runID string, invoices []billing.Invoice) error {
	_ = runID
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, err := d.fileName(inv.AccountID)
		if err != nil {
			return err
		}
		data, err := d.render(inv)
		if err != nil {
			return fmt.Errorf("invoice dir: render %s: %w", inv.AccountID, err)
		}
		if err := writeAtomic(name, data); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the file an account's invoice is written to.
func (d *InvoiceDir) Path(accountID string) string {
	return filepath.Join(d.dir, accountID+"."+d.ext)
}

func (d *InvoiceDir) fileName(accountID string) (string, error) {
	if accountID == "" {
		return "", billing.ErrEmptyAccountID
	}
	if strings.ContainsAny(accountID, `/\`) || accountID == "." || accountID == ".." {
		return "", fmt.Errorf("invoice dir: invalid account id %q", accountID)
	}
	return d.Path(accountID), nil
}
