package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the invoice API.
const (
	ActionInvoiceList   = "invoice.list"
	ActionInvoiceView   = "invoice.view"
	ActionInvoiceExport = "invoice.export"
	ActionRunTrigger    = "run.trigger"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	AccountID     string
	RunID         string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// complete fills the generated fields a caller left empty.
func (e Entry) complete(now time.Time) Entry {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.PayloadDigest == "" {
		e.PayloadDigest = DigestJSON(e.Metadata)
	}
	return e
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LogLogger writes audit entries to a standard logger when no database is configured.
type LogLogger struct {
	logger *log.Logger
}

// NewLogLogger constructs a LogLogger.
func NewLogLogger(logger *log.Logger) *LogLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &LogLogger{logger: logger}
}

// Log prints one line per entry.
func (l *LogLogger) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	l.logger.Printf("audit: actor=%s role=%s action=%s account=%s run=%s ip=%s",
		entry.Actor, entry.Role, entry.Action, entry.AccountID, entry.RunID, entry.IP)
	return nil
}
