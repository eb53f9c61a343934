package interfaces

import (
	"bytes"
	"errors"
	"sort"
	"text/template"
	"time"

	billing "pik-billing/internal/billing/domain"
)

const (
	invoiceDateLayout = "02.01.2006"
	paymentTerm       = 14 * 24 * time.Hour

	DefaultClubName = "PIK ry"
	DefaultPayee    = "Polyteknikkojen Ilmailukerho ry"
	DefaultIBAN     = "FI24 1309 3000 1124 58 (Nordea)"
)

// DefaultInvoiceTemplate is the member invoice sent by email.
const DefaultInvoiceTemplate = `{{.ClubName}} jäsenlaskutus, viite {{.AccountID}}
---------------------------
{{if .Payable}}Laskun päivämäärä: {{.Date}}

Saaja: {{.Payee}}
Saajan tilinumero: {{.IBAN}}

Viitenumero (PIK-viite): {{.AccountID}}
Laskun eräpäivä: {{.DueDate}}

Maksettavaa: {{.Total}} EUR
---------------------------

{{else}}Lentotilin saldo: {{.Total}} EUR
---------------------------

Ei maksettavaa kerholle.
---------------------------

{{end}}{{.Details}}

Tapahtumien erittely:

{{range .Charged}}{{.Date}} {{.Item}}:  {{.Price}}
{{end}}
Myös seuraavat tapahtumat (à 0 EUR) on huomioitu:

{{range .Free}}{{.Date}} {{.Item}}
{{end}}`

// InvoiceView is the data an invoice template renders.
type InvoiceView struct {
	ClubName  string
	AccountID string
	Date      string
	DueDate   string
	Payee     string
	IBAN      string
	Details   string
	Total     string
	Payable   bool
	Charged   []InvoiceLineView
	Free      []InvoiceLineView
}

// InvoiceLineView is one rendered line.
type InvoiceLineView struct {
	Date  string
	Item  string
	Price string
}

// TextRenderer renders member invoices as plain text.
type TextRenderer struct {
	tpl      *template.Template
	clubName string
	payee    string
	iban     string
	details  string
}

// TextOption configures the renderer.
type TextOption func(*TextRenderer)

// WithPayee overrides the payment recipient and account.
func WithPayee(payee, iban string) TextOption {
	return func(r *TextRenderer) {
		if payee != "" {
			r.payee = payee
		}
		if iban != "" {
			r.iban = iban
		}
	}
}

// WithDetails sets the paragraph printed above the itemised lines.
func WithDetails(details string) TextOption {
	return func(r *TextRenderer) {
		if details != "" {
			r.details = details
		}
	}
}

// WithClubName overrides the invoice header.
func WithClubName(name string) TextOption {
	return func(r *TextRenderer) {
		if name != "" {
			r.clubName = name
		}
	}
}

// NewTextRenderer parses an invoice template, falling back to DefaultInvoiceTemplate.
func NewTextRenderer(tpl string, opts ...TextOption) (*TextRenderer, error) {
	if tpl == "" {
		tpl = DefaultInvoiceTemplate
	}
	parsed, err := template.New("member-invoice").Parse(tpl)
	if err != nil {
		return nil, err
	}
	r := &TextRenderer{
		tpl:      parsed,
		clubName: DefaultClubName,
		payee:    DefaultPayee,
		iban:     DefaultIBAN,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// View builds the template data for inv. Lines are ordered by date; zero priced lines are listed separately.
func (r *TextRenderer) View(inv billing.Invoice) InvoiceView {
	total := inv.Total()
	lines := sortedLines(inv.Lines)
	details := r.details
	if details == "" {
		details = defaultDetails(inv.Date, lines)
	}
	view := InvoiceView{
		ClubName:  r.clubName,
		AccountID: inv.AccountID,
		Date:      inv.Date.Format(invoiceDateLayout),
		DueDate:   inv.Date.Add(paymentTerm).Format(invoiceDateLayout),
		Payee:     r.payee,
		IBAN:      r.iban,
		Details:   details,
		Total:     total.StringFixed(2),
		Payable:   total.IsPositive(),
	}
	for _, line := range lines {
		lv := InvoiceLineView{
			Date:  line.Date.Format(invoiceDateLayout),
			Item:  line.Item,
			Price: line.Price.StringFixed(2),
		}
		if line.Price.IsZero() {
			view.Free = append(view.Free, lv)
		} else {
			view.Charged = append(view.Charged, lv)
		}
	}
	return view
}

// Render applies the template to inv.
func (r *TextRenderer) Render(inv billing.Invoice) (string, error) {
	if r == nil || r.tpl == nil {
		return "", errors.New("invoice template: nil")
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, r.View(inv)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderBytes adapts Render to file.RenderFunc.
func (r *TextRenderer) RenderBytes(inv billing.Invoice) ([]byte, error) {
	text, err := r.Render(inv)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// defaultDetails names the year of the latest billed event.
func defaultDetails(date time.Time, sorted []billing.InvoiceLine) string {
	if len(sorted) > 0 {
		date = sorted[len(sorted)-1].Date
	}
	return "Laskussa on huomioitu lennot ja tilitapahtumat " + date.Format("2006") + " loppuun saakka."
}

func sortedLines(lines []billing.InvoiceLine) []billing.InvoiceLine {
	out := append([]billing.InvoiceLine(nil), lines...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
