package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	resultSuccess = "success"
	resultError   = "error"

	violationMixedSign    = "mixed_sign"
	violationMixedAccount = "mixed_ledger_account"

	capClipped = "clipped"
	capDropped = "dropped"
)

var (
	registerOnce sync.Once

	billingRunTotal   *prometheus.CounterVec
	billingRunLatency *prometheus.HistogramVec

	billingEventsTotal     *prometheus.CounterVec
	billingUnmatchedTotal  *prometheus.CounterVec
	billingLinesTotal      prometheus.Counter
	billingInvoicesTotal   prometheus.Counter
	billingViolationsTotal *prometheus.CounterVec
	billingLedgerLegsTotal prometheus.Counter
	billingCapLinesTotal   *prometheus.CounterVec

	invoiceExportTotal   *prometheus.CounterVec
	invoiceExportLatency *prometheus.HistogramVec

	reviewNotifyTotal *prometheus.CounterVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		billingRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_run_total",
				Help: "Total billing runs by result",
			},
			[]string{"result"},
		)
		billingRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "billing_run_latency_seconds",
				Help:    "Billing run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		billingEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_events_total",
				Help: "Total replayed events by kind",
			},
			[]string{"kind"},
		)
		billingUnmatchedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_unmatched_events_total",
				Help: "Events that produced no invoice lines, by kind",
			},
			[]string{"kind"},
		)
		billingLinesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_invoice_lines_total",
				Help: "Total invoice lines produced",
			},
		)
		billingInvoicesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_invoices_total",
				Help: "Total invoices assembled",
			},
		)
		billingViolationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_ledger_violations_total",
				Help: "Ledger consistency violations by reason",
			},
			[]string{"reason"},
		)
		billingLedgerLegsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_ledger_legs_total",
				Help: "Total double-entry legs written",
			},
		)

		billingCapLinesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_cap_lines_total",
				Help: "Invoice lines clipped or dropped by a price cap",
			},
			[]string{"category", "outcome"},
		)
		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_export_total",
				Help: "Total invoice export operations by format and result",
			},
			[]string{"format", "result"},
		)
		invoiceExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_export_latency_seconds",
				Help:    "Invoice export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		reviewNotifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_review_notify_total",
				Help: "Review notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			billingRunTotal,
			billingRunLatency,
			billingEventsTotal,
			billingUnmatchedTotal,
			billingLinesTotal,
			billingInvoicesTotal,
			billingViolationsTotal,
			billingLedgerLegsTotal,
			billingCapLinesTotal,
			invoiceExportTotal,
			invoiceExportLatency,
			reviewNotifyTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveBillingRun records run duration and result.
func ObserveBillingRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if billingRunTotal != nil {
		billingRunTotal.WithLabelValues(result).Inc()
	}
	if billingRunLatency != nil {
		billingRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncEvent counts a replayed event.
func IncEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if billingEventsTotal != nil {
		billingEventsTotal.WithLabelValues(kind).Inc()
	}
}

// IncUnmatched counts an event no rule priced.
func IncUnmatched(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if billingUnmatchedTotal != nil {
		billingUnmatchedTotal.WithLabelValues(kind).Inc()
	}
}

// AddLines adds produced invoice lines.
func AddLines(count int) {
	if count <= 0 {
		return
	}
	if billingLinesTotal != nil {
		billingLinesTotal.Add(float64(count))
	}
}

// AddInvoices adds assembled invoices.
func AddInvoices(count int) {
	if count <= 0 {
		return
	}
	if billingInvoicesTotal != nil {
		billingInvoicesTotal.Add(float64(count))
	}
}

// IncViolation counts a ledger consistency violation.
func IncViolation(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if billingViolationsTotal != nil {
		billingViolationsTotal.WithLabelValues(reason).Inc()
	}
}

// AddLedgerLegs adds written ledger legs.
func AddLedgerLegs(count int) {
	if count <= 0 {
		return
	}
	if billingLedgerLegsTotal != nil {
		billingLedgerLegsTotal.Add(float64(count))
	}
}

// IncCap counts a line a cap clipped or dropped.
func IncCap(category, outcome string) {
	if category == "" {
		category = "unknown"
	}
	if billingCapLinesTotal != nil {
		billingCapLinesTotal.WithLabelValues(category, outcome).Inc()
	}
}

// ObserveInvoiceExport records export latency and result.
func ObserveInvoiceExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format, result).Inc()
	}
	if invoiceExportLatency != nil {
		invoiceExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncReviewNotify counts review notifications.
func IncReviewNotify(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reviewNotifyTotal != nil {
		reviewNotifyTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ViolationMixedSign    = violationMixedSign
	ViolationMixedAccount = violationMixedAccount

	CapClipped = capClipped
	CapDropped = capDropped
)
