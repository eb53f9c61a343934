package interfaces

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	billing "pik-billing/internal/billing/domain"
)

type invoiceDocument struct {
	RunID    string       `json:"run_id,omitempty"`
	Invoices []invoiceDTO `json:"invoices"`
}

type invoiceDTO struct {
	AccountID string    `json:"account_id"`
	Date      string    `json:"date"`
	Total     string    `json:"total"`
	Lines     []lineDTO `json:"lines"`
}

type lineDTO struct {
	Date          string `json:"date"`
	Item          string `json:"item"`
	Price         string `json:"price"`
	LedgerAccount *int   `json:"ledger_account,omitempty"`
	LedgerYear    *int   `json:"ledger_year,omitempty"`
	Rollup        bool   `json:"rollup,omitempty"`
}

// EncodeInvoices writes invoices in the interchange JSON format.
func EncodeInvoices(runID string, invoices []billing.Invoice) ([]byte, error) {
	doc := invoiceDocument{RunID: runID, Invoices: make([]invoiceDTO, 0, len(invoices))}
	for _, inv := range invoices {
		doc.Invoices = append(doc.Invoices, toInvoiceDTO(inv))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// EncodeInvoice renders a single invoice, usable as a file.RenderFunc.
func EncodeInvoice(inv billing.Invoice) ([]byte, error) {
	return json.MarshalIndent(toInvoiceDTO(inv), "", "  ")
}

// DecodeInvoices reads invoices written by EncodeInvoices. Decoded lines carry
// no producing rule or source event.
func DecodeInvoices(data []byte) (string, []billing.Invoice, error) {
	var doc invoiceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, err
	}
	out := make([]billing.Invoice, 0, len(doc.Invoices))
	for _, dto := range doc.Invoices {
		inv, err := fromInvoiceDTO(dto)
		if err != nil {
			return "", nil, err
		}
		out = append(out, inv)
	}
	return doc.RunID, out, nil
}

func toInvoiceDTO(inv billing.Invoice) invoiceDTO {
	dto := invoiceDTO{
		AccountID: inv.AccountID,
		Date:      billing.FormatDate(inv.Date),
		Total:     inv.Total().StringFixed(2),
		Lines:     make([]lineDTO, 0, len(inv.Lines)),
	}
	for _, line := range inv.Lines {
		dto.Lines = append(dto.Lines, lineDTO{
			Date:          billing.FormatDate(line.Date),
			Item:          line.Item,
			Price:         line.Price.StringFixed(2),
			LedgerAccount: intPtr(line.LedgerAccount),
			LedgerYear:    intPtr(line.LedgerYear),
			Rollup:        line.Rollup,
		})
	}
	return dto
}

func fromInvoiceDTO(dto invoiceDTO) (billing.Invoice, error) {
	if dto.AccountID == "" {
		return billing.Invoice{}, billing.ErrEmptyAccountID
	}
	date, err := billing.ParseDate(dto.Date)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("invoice %s: %w", dto.AccountID, err)
	}
	inv := billing.Invoice{AccountID: dto.AccountID, Date: date}
	for i, l := range dto.Lines {
		lineDate, err := billing.ParseDate(l.Date)
		if err != nil {
			return billing.Invoice{}, fmt.Errorf("invoice %s line %d: %w", dto.AccountID, i, err)
		}
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return billing.Invoice{}, fmt.Errorf("invoice %s line %d: price %q: %w", dto.AccountID, i, l.Price, err)
		}
		line := billing.NewInvoiceLine(dto.AccountID, lineDate, l.Item, price, nil, billing.Event{})
		line.LedgerAccount = fromIntPtr(l.LedgerAccount)
		line.LedgerYear = fromIntPtr(l.LedgerYear)
		line.Rollup = l.Rollup
		inv.Lines = append(inv.Lines, line)
	}
	if dto.Total != "" {
		total, err := decimal.NewFromString(dto.Total)
		if err != nil {
			return billing.Invoice{}, fmt.Errorf("invoice %s: total %q: %w", dto.AccountID, dto.Total, err)
		}
		if !total.Equal(inv.Total()) {
			return billing.Invoice{}, fmt.Errorf("invoice %s: total %s does not match lines %s", dto.AccountID, dto.Total, inv.Total().StringFixed(2))
		}
	}
	return inv, nil
}

func intPtr(n billing.NullInt) *int {
	if !n.Valid {
		return nil
	}
	v := n.Int
	return &v
}

func fromIntPtr(p *int) billing.NullInt {
	if p == nil {
		return billing.NullInt{}
	}
	return billing.Int(*p)
}
