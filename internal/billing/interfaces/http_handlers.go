package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pik-billing/internal/audit"
	"pik-billing/internal/auth"
	"pik-billing/internal/billing/application"
	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/observability/metrics"
)

// InvoiceReader serves stored invoices.
type InvoiceReader interface {
	List(ctx context.Context) ([]billing.Invoice, error)
	Get(ctx context.Context, accountID string) (*billing.Invoice, error)
}

// HandlerOption configures API handlers.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	audit  audit.Logger
	logger *log.Logger
}

// WithAudit records API access to the given audit logger.
func WithAudit(l audit.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if l != nil {
			c.audit = l
		}
	}
}

// WithHandlerLogger overrides the default logger.
func WithHandlerLogger(logger *log.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// record writes an audit entry. Failures are logged and do not fail the request.
func (c handlerConfig) record(r *http.Request, action, accountID, runID string, meta map[string]string) {
	if c.audit == nil {
		return
	}
	entry := audit.Entry{
		Actor:     auth.SubjectFromContext(r.Context()),
		Role:      string(auth.RoleFromContext(r.Context())),
		Action:    action,
		AccountID: accountID,
		RunID:     runID,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			entry.Metadata = raw
		}
	}
	if err := c.audit.Log(r.Context(), entry); err != nil {
		c.logger.Printf("audit log failed: action=%s account=%s: %v", action, accountID, err)
	}
}

// InvoiceHandler serves the invoice API.
type InvoiceHandler struct {
	handlerConfig
	repo InvoiceReader
	text *TextRenderer
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(repo InvoiceReader, text *TextRenderer, opts ...HandlerOption) *InvoiceHandler {
	return &InvoiceHandler{handlerConfig: newHandlerConfig(opts), repo: repo, text: text}
}

// ServeHTTP handles:
// GET /api/v1/invoices
// GET /api/v1/invoices/{account}
// GET /api/v1/invoices/{account}/export.{json,txt,csv,pdf,xlsx}
func (h *InvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "/api/v1/invoices" {
		h.handleList(w, r)
		return
	}
	rest := strings.TrimPrefix(path, "/api/v1/invoices/")
	if rest == path || rest == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	accountID := parts[0]
	if err := auth.EnsureAccountAccess(r.Context(), accountID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	switch {
	case len(parts) == 1:
		h.handleGet(w, r, accountID)
	case len(parts) == 2 && strings.HasPrefix(parts[1], "export."):
		h.handleExport(w, r, accountID, strings.TrimPrefix(parts[1], "export."))
	default:
		http.NotFound(w, r)
	}
}

func (h *InvoiceHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if err := auth.EnsureTreasurer(r.Context()); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	invoices, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Printf("invoice api: list: %v", err)
		http.Error(w, "list invoices error", http.StatusInternalServerError)
		return
	}
	data, err := EncodeInvoices("", invoices)
	if err != nil {
		http.Error(w, "encode invoices error", http.StatusInternalServerError)
		return
	}
	h.record(r, audit.ActionInvoiceList, "", "", nil)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *InvoiceHandler) handleGet(w http.ResponseWriter, r *http.Request, accountID string) {
	inv, ok := h.load(w, r, accountID)
	if !ok {
		return
	}
	data, err := EncodeInvoice(*inv)
	if err != nil {
		http.Error(w, "encode invoice error", http.StatusInternalServerError)
		return
	}
	h.record(r, audit.ActionInvoiceView, accountID, "", nil)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *InvoiceHandler) handleExport(w http.ResponseWriter, r *http.Request, accountID, format string) {
	inv, ok := h.load(w, r, accountID)
	if !ok {
		return
	}
	start := time.Now()
	var (
		data        []byte
		err         error
		contentType string
	)
	switch format {
	case "json":
		contentType = "application/json"
		data, err = EncodeInvoice(*inv)
	case "txt":
		contentType = "text/plain; charset=utf-8"
		if h.text == nil {
			err = errors.New("invoice api: no text renderer")
			break
		}
		data, err = h.text.RenderBytes(*inv)
	case "csv":
		contentType = "text/csv; charset=utf-8"
		data, err = BuildInvoiceCSV([]billing.Invoice{*inv})
	case "pdf":
		contentType = "application/pdf"
		data, err = BuildInvoicePDF(*inv)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		data, err = BuildInvoiceXLSX(*inv)
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveInvoiceExport(format, metrics.ResultError, time.Since(start))
		h.logger.Printf("invoice api: export %s %s: %v", accountID, format, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveInvoiceExport(format, metrics.ResultSuccess, time.Since(start))
	h.record(r, audit.ActionInvoiceExport, accountID, "", map[string]string{"format": format})
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"lasku-"+accountID+"."+format+"\"")
	_, _ = w.Write(data)
}

func (h *InvoiceHandler) load(w http.ResponseWriter, r *http.Request, accountID string) (*billing.Invoice, bool) {
	inv, err := h.repo.Get(r.Context(), accountID)
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		http.Error(w, "invoice not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Printf("invoice api: get %s: %v", accountID, err)
		http.Error(w, "get invoice error", http.StatusInternalServerError)
		return nil, false
	}
	return inv, true
}

// Runner executes a billing run.
type Runner interface {
	Run(ctx context.Context, cfg application.RunConfig) (*application.RunReport, error)
}

// RunHandler triggers billing runs. Only one run executes at a time.
type RunHandler struct {
	handlerConfig
	runner Runner
	base   application.RunConfig
	mu     sync.Mutex
}

// NewRunHandler constructs a RunHandler. base supplies the invoice date, prefixes and ledger settings.
func NewRunHandler(runner Runner, base application.RunConfig, opts ...HandlerOption) *RunHandler {
	return &RunHandler{handlerConfig: newHandlerConfig(opts), runner: runner, base: base}
}

type runResponse struct {
	RunID        string   `json:"run_id"`
	DryRun       bool     `json:"dry_run"`
	Events       int      `json:"events"`
	Lines        int      `json:"lines"`
	Invoices     int      `json:"invoices"`
	Total        string   `json:"total"`
	Transactions int      `json:"transactions"`
	Excluded     []string `json:"excluded,omitempty"`
	Flagged      []string `json:"flagged_accounts,omitempty"`
	Unmatched    []string `json:"unmatched,omitempty"`
	Unposted     []string `json:"unposted,omitempty"`
}

// ServeHTTP handles POST /api/v1/runs[?dry_run=true].
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.runner == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if err := auth.EnsureTreasurer(r.Context()); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !h.mu.TryLock() {
		http.Error(w, "billing run in progress", http.StatusConflict)
		return
	}
	defer h.mu.Unlock()

	cfg := h.base
	cfg.DryRun = cfg.DryRun || r.URL.Query().Get("dry_run") == "true"
	report, err := h.runner.Run(r.Context(), cfg)
	if errors.Is(err, application.ErrInputsCommitted) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Printf("run api: %v", err)
		http.Error(w, "billing run failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.record(r, audit.ActionRunTrigger, "", report.RunID, map[string]string{"dry_run": strconv.FormatBool(report.DryRun)})
	review := report.Review()
	resp := runResponse{
		RunID:        report.RunID,
		DryRun:       report.DryRun,
		Events:       report.Events,
		Lines:        report.Lines,
		Invoices:     review.Invoices,
		Total:        review.Total.StringFixed(2),
		Transactions: len(report.Transactions),
		Excluded:     report.Excluded,
		Flagged:      review.FlaggedAccounts,
		Unmatched:    review.Unmatched,
		Unposted:     review.Unposted,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
