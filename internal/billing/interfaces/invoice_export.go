package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "pik-billing/internal/billing/domain"
)

// BuildInvoiceCSV renders invoice lines as CSV, one row per line.
func BuildInvoiceCSV(invoices []billing.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{
		"account_id",
		"date",
		"item",
		"price",
		"ledger_account",
		"ledger_year",
		"rollup",
	})
	for _, inv := range invoices {
		for _, line := range inv.Lines {
			_ = writer.Write([]string{
				inv.AccountID,
				billing.FormatDate(line.Date),
				line.Item,
				line.Price.StringFixed(2),
				optional(line.LedgerAccount),
				optional(line.LedgerYear),
				fmt.Sprintf("%t", line.Rollup),
			})
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoicePDF renders a one page invoice summary.
func BuildInvoicePDF(inv billing.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	total := inv.Total()
	pdf.Cell(0, 8, tr(fmt.Sprintf("%s jäsenlaskutus, viite %s", DefaultClubName, inv.AccountID)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Laskun päivämäärä: %s", inv.Date.Format(invoiceDateLayout))))
	pdf.Ln(5)
	if total.IsPositive() {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Laskun eräpäivä: %s", inv.Date.Add(paymentTerm).Format(invoiceDateLayout))))
		pdf.Ln(5)
		pdf.Cell(0, 6, tr(fmt.Sprintf("Maksettavaa: %s EUR", total.StringFixed(2))))
	} else {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Lentotilin saldo: %s EUR", total.StringFixed(2))))
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, tr("Päivä"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(130, 6, tr("Selite"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "EUR", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, line := range sortedLines(inv.Lines) {
		pdf.CellFormat(30, 6, line.Date.Format(invoiceDateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(130, 6, tr(line.Item), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, line.Price.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice with a summary sheet and a lines sheet.
func BuildInvoiceXLSX(inv billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "lasku"
	linesSheet := "rivit"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	total, _ := inv.Total().Float64()
	_ = f.SetCellValue(summarySheet, "A1", DefaultClubName+" jäsenlaskutus")
	_ = f.SetCellValue(summarySheet, "A3", "Viite")
	_ = f.SetCellValue(summarySheet, "B3", inv.AccountID)
	_ = f.SetCellValue(summarySheet, "A4", "Päivämäärä")
	_ = f.SetCellValue(summarySheet, "B4", inv.Date.Format(invoiceDateLayout))
	_ = f.SetCellValue(summarySheet, "A5", "Eräpäivä")
	_ = f.SetCellValue(summarySheet, "B5", inv.Date.Add(paymentTerm).Format(invoiceDateLayout))
	_ = f.SetCellValue(summarySheet, "A6", "Yhteensä (EUR)")
	_ = f.SetCellValue(summarySheet, "B6", total)

	_ = f.SetCellValue(linesSheet, "A1", "Päivä")
	_ = f.SetCellValue(linesSheet, "B1", "Selite")
	_ = f.SetCellValue(linesSheet, "C1", "EUR")
	_ = f.SetCellValue(linesSheet, "D1", "Tili")
	for i, line := range sortedLines(inv.Lines) {
		row := i + 2
		price, _ := line.Price.Float64()
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), line.Date.Format(invoiceDateLayout))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), line.Item)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), price)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), optional(line.LedgerAccount))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optional(n billing.NullInt) string {
	if !n.Valid {
		return ""
	}
	return fmt.Sprintf("%d", n.Int)
}
