package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	billing "pik-billing/internal/billing/domain"
)

// ErrInputsCommitted is returned when a committed run would replay an event
// stream that already advanced the snapshot.
var ErrInputsCommitted = errors.New("billing run: inputs already committed")

// CommitLog remembers the input digest of every committed run.
type CommitLog interface {
	// CommittedRun returns the run that committed digest, or "" if none did.
	CommittedRun(ctx context.Context, digest string) (string, error)
	RecordCommit(ctx context.Context, runID, digest string) error
}

type digestRecord struct {
	Kind   string               `json:"kind"`
	Flight *billing.FlightEvent `json:"flight,omitempty"`
	Ledger *billing.LedgerEvent `json:"ledger,omitempty"`
}

// DigestEvents hashes the event stream in source order.
func DigestEvents(events []billing.Event) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, ev := range events {
		rec := digestRecord{Kind: ev.Kind().String()}
		if f, ok := ev.Flight(); ok {
			rec.Flight = &f
		}
		if l, ok := ev.Ledger(); ok {
			rec.Ledger = &l
		}
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
