package rules

import (
	"bytes"
	"errors"
	"text/template"

	billing "pik-billing/internal/billing/domain"
)

// DefaultFlightTemplate is the description used when a flight rule has none.
const DefaultFlightTemplate = "Lento, {{.Aircraft}}, {{.Duration}} min"

// DescriptionData exposes flight fields to line description templates.
type DescriptionData struct {
	Aircraft         string
	Date             string
	AccountID        string
	Purpose          string
	Duration         int
	InvoicingComment string
	TakeoffTime      string
	LandingTime      string
	Captain          string
	Student          string
}

// Description renders invoice line text for flights.
type Description struct {
	source string
	tpl    *template.Template
}

// NewDescription parses a description template, falling back to DefaultFlightTemplate.
func NewDescription(source string) (*Description, error) {
	if source == "" {
		source = DefaultFlightTemplate
	}
	parsed, err := template.New("line").Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, err
	}
	d := &Description{source: source, tpl: parsed}
	// Unknown fields only fail at execution time.
	if _, err := d.Render(billing.FlightEvent{}); err != nil {
		return nil, err
	}
	return d, nil
}

// Render applies the template to a flight.
func (d *Description) Render(f billing.FlightEvent) (string, error) {
	if d == nil || d.tpl == nil {
		return "", errors.New("line description: nil template")
	}
	var buf bytes.Buffer
	err := d.tpl.Execute(&buf, DescriptionData{
		Aircraft:         f.Aircraft,
		Date:             billing.FormatDate(f.Date),
		AccountID:        f.AccountID,
		Purpose:          string(f.Purpose),
		Duration:         f.DurationMinutes,
		InvoicingComment: f.InvoicingComment,
		TakeoffTime:      f.TakeoffTime,
		LandingTime:      f.LandingTime,
		Captain:          f.Captain,
		Student:          f.Student,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *Description) String() string {
	if d == nil {
		return ""
	}
	return d.source
}
