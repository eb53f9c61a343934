package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	billing "pik-billing/internal/billing/domain"
)

// Flight log columns. The last two are optional.
const (
	colAircraft = iota
	colDate
	colPayer
	colCaptain
	colStudent
	colPersons
	colTakeoffLocation
	colLandingLocation
	colTakeoffTime
	colLandingTime
	colDurationHHMM
	colLandings
	colPurpose
	colDurationMinutes
	colInvoicingComment
	colExtraComments
	colTransferTow

	minFlightColumns = colInvoicingComment + 1
)

// ErrForeignTimezone is returned for flights from a location outside the club's timezone.
var ErrForeignTimezone = errors.New("csvsource: flight location in a different timezone")

var sameTimezonePrefixes = []string{"ef", "ee", "zz", "pirtti"}

// RowError reports a CSV row that could not be turned into an event.
type RowError struct {
	Line int
	Row  []string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, strings.Join(e.Row, ","))
}

func (e *RowError) Unwrap() error { return e.Err }

// ReadFlights parses a flight log. A first row whose duration column is not an
// integer is treated as a header.
func ReadFlights(r io.Reader) ([]billing.Event, error) {
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
		if first {
			first = false
			if len(row) > colDurationMinutes {
				if _, err := strconv.Atoi(strings.TrimSpace(row[colDurationMinutes])); err != nil {
					continue
				}
			}
		}
		ev, err := parseFlight(row)
		if err != nil {
			return nil, &RowError{Line: line, Row: row, Err: err}
		}
		events = append(events, ev)
	}
}

func parseFlight(row []string) (billing.Event, error) {
	if len(row) < minFlightColumns {
		return billing.Event{}, fmt.Errorf("expected at least %d columns, got %d", minFlightColumns, len(row))
	}
	date, err := billing.ParseDate(strings.TrimSpace(row[colDate]))
	if err != nil {
		return billing.Event{}, err
	}
	persons, err := atoi(row[colPersons], "persons")
	if err != nil {
		return billing.Event{}, err
	}
	landings, err := atoi(row[colLandings], "landings")
	if err != nil {
		return billing.Event{}, err
	}
	duration, err := atoi(row[colDurationMinutes], "duration")
	if err != nil {
		return billing.Event{}, err
	}
	for _, loc := range []string{row[colTakeoffLocation], row[colLandingLocation]} {
		if !sameTimezone(loc) {
			return billing.Event{}, fmt.Errorf("%w: %q", ErrForeignTimezone, loc)
		}
	}
	f := billing.FlightEvent{
		Date:             date,
		AccountID:        strings.TrimSpace(row[colPayer]),
		Aircraft:         strings.TrimSpace(row[colAircraft]),
		TakeoffTime:      row[colTakeoffTime],
		LandingTime:      row[colLandingTime],
		Purpose:          billing.Purpose(row[colPurpose]),
		DurationMinutes:  duration,
		InvoicingComment: strings.TrimSpace(row[colInvoicingComment]),
		Captain:          row[colCaptain],
		Student:          row[colStudent],
		Persons:          persons,
		TakeoffLocation:  row[colTakeoffLocation],
		LandingLocation:  row[colLandingLocation],
		Landings:         landings,
	}
	if len(row) > colExtraComments {
		f.ExtraComments = row[colExtraComments]
	}
	if len(row) > colTransferTow {
		f.TransferTow = parseFlag(row[colTransferTow])
	}
	return billing.NewFlightEvent(f)
}

func sameTimezone(location string) bool {
	loc := strings.ToLower(strings.TrimSpace(location))
	for _, prefix := range sameTimezonePrefixes {
		if strings.HasPrefix(loc, prefix) {
			return true
		}
	}
	return false
}

func atoi(value, field string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", field, value)
	}
	return n, nil
}

func parseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "ei":
		return false
	}
	return true
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func trimBOM(row []string, first bool) []string {
	if first && len(row) > 0 {
		row[0] = strings.TrimPrefix(row[0], "\ufeff")
	}
	return row
}
