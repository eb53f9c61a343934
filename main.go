package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pik-billing/internal/audit"
	"pik-billing/internal/auth"
	"pik-billing/internal/billing/application"
	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/billing/infrastructure/csvsource"
	"pik-billing/internal/billing/infrastructure/file"
	"pik-billing/internal/billing/infrastructure/hansa"
	"pik-billing/internal/billing/infrastructure/memory"
	billingrepo "pik-billing/internal/billing/infrastructure/postgres"
	"pik-billing/internal/billing/interfaces"
	"pik-billing/internal/billing/pricing"
	"pik-billing/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = "usage: pik-billing [run|serve]"

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	switch command {
	case "run":
		runOnce(cfg, logger)
	case "serve":
		serve(cfg, logger)
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		logger.Fatalf("unknown command %q; %s", command, usage)
	}
}

func runOnce(cfg config, logger *log.Logger) {
	db := openDB(cfg, logger)
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	w := buildWiring(cfg, db, logger)
	if w.runs == nil {
		logger.Fatalf("billing run: %v", w.runErr)
	}
	report, err := w.runs.Run(context.Background(), w.runConfig)
	if err != nil {
		logger.Fatalf("billing run failed: %v", err)
	}
	review := report.Review()
	logger.Printf("billing run %s done: invoices=%d total=%s transactions=%d dry_run=%t",
		report.RunID, review.Invoices, review.Total.StringFixed(2), len(report.Transactions), report.DryRun)
	if review.NeedsAttention() {
		fmt.Println(interfaces.FormatReview(review))
	}
}

func serve(cfg config, logger *log.Logger) {
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	db := openDB(cfg, logger)
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	w := buildWiring(cfg, db, logger)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	var auditLogger audit.Logger = audit.NewLogLogger(logger)
	if db != nil {
		auditLogger = audit.NewRepository(db)
	}
	handlerOpts := []interfaces.HandlerOption{
		interfaces.WithAudit(auditLogger),
		interfaces.WithHandlerLogger(logger),
	}

	invoiceHandler := interfaces.NewInvoiceHandler(w.invoices, w.text, handlerOpts...)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/invoices", invoiceHandler)
	mux.Handle("/api/v1/invoices/", invoiceHandler)
	if w.runs != nil {
		base := w.runConfig
		base.DryRun = base.DryRun || !cfg.APICommitRuns
		mux.Handle("/api/v1/runs", interfaces.NewRunHandler(w.runs, base, handlerOpts...))
	} else {
		logger.Printf("billing runs disabled: %v", w.runErr)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type invoiceStore interface {
	application.InvoiceSink
	interfaces.InvoiceReader
}

type wiring struct {
	runs      *application.RunService
	runErr    error
	runConfig application.RunConfig
	invoices  invoiceStore
	text      *interfaces.TextRenderer
}

func buildWiring(cfg config, db *sql.DB, logger *log.Logger) wiring {
	text, err := newTextRenderer(cfg)
	if err != nil {
		logger.Fatalf("invoice template error: %v", err)
	}

	var snapshots application.SnapshotStore
	var invoices invoiceStore
	var commits application.CommitLog
	if db != nil {
		snapshots = billingrepo.NewSnapshotStore(db)
		invoices = billingrepo.NewInvoiceRepository(db)
		commits = billingrepo.NewCommitLog(db)
	} else {
		store, err := file.NewSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			logger.Fatalf("snapshot store error: %v", err)
		}
		commitLog, err := file.NewCommitLog(cfg.CommitLogPath)
		if err != nil {
			logger.Fatalf("commit log error: %v", err)
		}
		snapshots = store
		invoices = memory.NewInvoiceRepository()
		commits = commitLog
	}

	w := wiring{invoices: invoices, text: text}
	w.runConfig = application.RunConfig{
		InvoiceDate:        cfg.InvoiceDate,
		ExcludePrefixes:    cfg.ExcludePrefixes,
		DebtAccount:        cfg.DebtAccount,
		FirstTransactionID: cfg.FirstTransactionID,
		DryRun:             cfg.DryRun,
	}

	tables, err := pricing.LoadTables(cfg.PricingConfig)
	if err != nil {
		logger.Fatalf("pricing tables error: %v", err)
	}
	for _, y := range tables.Years {
		for _, note := range y.Notes {
			logger.Printf("pricing review note: year=%d %s", y.Year, note)
		}
	}
	tree, err := pricing.Build(tables)
	if err != nil {
		logger.Fatalf("pricing rules error: %v", err)
	}
	engine, err := application.NewEngine(tree, logger)
	if err != nil {
		logger.Fatalf("billing engine error: %v", err)
	}

	source, err := csvsource.NewSource(cfg.LedgerPaths, cfg.FlightPaths)
	if err != nil {
		w.runErr = err
		return w
	}

	opts := []application.RunOption{
		application.WithLogger(logger),
		application.WithInvoiceSink(invoices),
		application.WithCommitLog(commits),
	}
	if cfg.OutputDir != "" {
		textDir, err := file.NewInvoiceDir(filepath.Join(cfg.OutputDir, "invoices"), "txt", text.RenderBytes)
		if err != nil {
			logger.Fatalf("invoice output error: %v", err)
		}
		jsonDir, err := file.NewInvoiceDir(filepath.Join(cfg.OutputDir, "json"), "json", interfaces.EncodeInvoice)
		if err != nil {
			logger.Fatalf("invoice output error: %v", err)
		}
		opts = append(opts, application.WithInvoiceSink(textDir), application.WithInvoiceSink(jsonDir))
	}
	if cfg.HansaPath != "" {
		ledger, err := hansa.NewFileWriter(cfg.HansaPath)
		if err != nil {
			logger.Fatalf("hansa writer error: %v", err)
		}
		opts = append(opts, application.WithLedgerWriter(ledger))
	}
	if cfg.ReviewWebhookURL != "" {
		opts = append(opts, application.WithReviewNotifier(interfaces.NewReviewWebhook(cfg.ReviewWebhookURL, cfg.ReviewWebhookTimeout)))
	}

	runs, err := application.NewRunService(engine, snapshots, source, opts...)
	if err != nil {
		logger.Fatalf("run service error: %v", err)
	}
	w.runs = runs
	return w
}

func newTextRenderer(cfg config) (*interfaces.TextRenderer, error) {
	tpl := ""
	if cfg.InvoiceTemplatePath != "" {
		data, err := os.ReadFile(cfg.InvoiceTemplatePath)
		if err != nil {
			return nil, err
		}
		tpl = string(data)
	}
	return interfaces.NewTextRenderer(tpl,
		interfaces.WithClubName(cfg.ClubName),
		interfaces.WithPayee(cfg.Payee, cfg.IBAN),
		interfaces.WithDetails(cfg.InvoiceDetails),
	)
}

func openDB(cfg config, logger *log.Logger) *sql.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}
	return db
}

type config struct {
	DatabaseURL          string
	HTTPAddr             string
	FlightPaths          []string
	LedgerPaths          []string
	SnapshotPath         string
	CommitLogPath        string
	PricingConfig        string
	InvoiceDate          time.Time
	ExcludePrefixes      []string
	OutputDir            string
	HansaPath            string
	FirstTransactionID   int
	DebtAccount          int
	DryRun               bool
	APICommitRuns        bool
	ReviewWebhookURL     string
	ReviewWebhookTimeout time.Duration
	InvoiceTemplatePath  string
	ClubName             string
	Payee                string
	IBAN                 string
	InvoiceDetails       string
	JWTSecret            string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:          getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:             getenvDefault("HTTP_ADDR", ":8080"),
		FlightPaths:          splitList(getenvDefault("BILLING_FLIGHTS", "")),
		LedgerPaths:          splitList(getenvDefault("BILLING_LEDGER", "")),
		SnapshotPath:         getenvDefault("BILLING_SNAPSHOT", "billing-context.json"),
		PricingConfig:        getenvDefault("PRICING_CONFIG", ""),
		ExcludePrefixes:      splitList(getenvDefault("BILLING_EXCLUDE_PREFIXES", "")),
		OutputDir:            getenvDefault("BILLING_OUTPUT_DIR", ""),
		FirstTransactionID:   getenvIntDefault("HANSA_START_TXN", 1),
		DebtAccount:          getenvIntDefault("HANSA_DEBT_ACCOUNT", billing.DefaultDebtAccount),
		DryRun:               getenvBoolDefault("BILLING_DRY_RUN", false),
		APICommitRuns:        getenvBoolDefault("BILLING_API_COMMIT", false),
		ReviewWebhookURL:     getenvDefault("REVIEW_WEBHOOK_URL", ""),
		ReviewWebhookTimeout: getenvDuration("REVIEW_WEBHOOK_TIMEOUT", 10*time.Second),
		InvoiceTemplatePath:  getenvDefault("INVOICE_TEMPLATE", ""),
		ClubName:             getenvDefault("INVOICE_CLUB_NAME", ""),
		Payee:                getenvDefault("INVOICE_PAYEE", ""),
		IBAN:                 getenvDefault("INVOICE_IBAN", ""),
		InvoiceDetails:       getenvDefault("INVOICE_DETAILS", ""),
		JWTSecret:            getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	cfg.CommitLogPath = getenvDefault("BILLING_COMMIT_LOG", cfg.SnapshotPath+".commits")
	cfg.HansaPath = getenvDefault("HANSA_OUTPUT", "")
	if cfg.HansaPath == "" && cfg.OutputDir != "" {
		cfg.HansaPath = filepath.Join(cfg.OutputDir, "hansa.txt")
	}
	if value := os.Getenv("BILLING_INVOICE_DATE"); value != "" {
		date, err := billing.ParseDate(value)
		if err != nil {
			log.Fatalf("BILLING_INVOICE_DATE: %v", err)
		}
		cfg.InvoiceDate = date
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
