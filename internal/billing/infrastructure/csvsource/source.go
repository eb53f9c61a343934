// Package csvsource reads billing events from the club's CSV exports.
package csvsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	billing "pik-billing/internal/billing/domain"
)

// Source reads ledger files first and flight logs second. Within a day the
// engine keeps this order, so a package bought on the day of a flight applies to it.
type Source struct {
	ledgerPaths []string
	flightPaths []string
}

// NewSource constructs a file backed event source.
func NewSource(ledgerPaths, flightPaths []string) (*Source, error) {
	if len(ledgerPaths) == 0 && len(flightPaths) == 0 {
		return nil, errors.New("csv source: no input files")
	}
	return &Source{ledgerPaths: ledgerPaths, flightPaths: flightPaths}, nil
}

// Events implements application.EventSource.
func (s *Source) Events(ctx context.Context) ([]billing.Event, error) {
	var events []billing.Event
	for _, path := range s.ledgerPaths {
		batch, err := readFile(ctx, path, ReadLedger)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	for _, path := range s.flightPaths {
		batch, err := readFile(ctx, path, ReadFlights)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	return events, nil
}

func readFile(ctx context.Context, path string, read func(io.Reader) ([]billing.Event, error)) ([]billing.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	events, err := read(file)
	if err != nil {
		return nil, fmt.Errorf("csv source: %s: %w", path, err)
	}
	return events, nil
}
