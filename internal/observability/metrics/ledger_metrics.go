package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/edupoints/pkg/db"
)

// Ledger operations used as label values.
const (
	OperationEarn  = "earn"
	OperationSpend = "spend"
)

// LedgerMetrics tracks the health of the atomic commit path.
type LedgerMetrics struct {
	casConflicts   *prometheus.CounterVec
	casExhausted   *prometheus.CounterVec
	storageErrors  *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	fraudLogDrops  prometheus.Counter
	cacheErrors    *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registered on the default registerer.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig(Config{})
}

func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers a fresh set of collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "edupoints"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &LedgerMetrics{
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "edupoints_ledger_cas_conflicts_total",
			Help:        "Account version conflicts that forced a commit retry.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		casExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "edupoints_ledger_cas_exhausted_total",
			Help:        "Commits abandoned after exhausting version conflict retries.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "edupoints_ledger_storage_errors_total",
			Help:        "Storage failures surfaced as storage_unavailable.",
			ConstLabels: constLabels,
		}, []string{"operation", "reason"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "edupoints_ledger_commit_duration_seconds",
			Help:        "Latency of the ledger and journal commit including retries.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
		fraudLogDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "edupoints_fraud_log_write_failures_total",
			Help:        "Fraud detection log writes that failed and were dropped.",
			ConstLabels: constLabels,
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "edupoints_balance_cache_errors_total",
			Help:        "Balance cache reads or writes that failed.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
	}

	registerer.MustRegister(
		m.casConflicts,
		m.casExhausted,
		m.storageErrors,
		m.commitDuration,
		m.fraudLogDrops,
		m.cacheErrors,
	)
	return m
}

func (m *LedgerMetrics) IncCASConflict(operation string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(operation).Inc()
}

func (m *LedgerMetrics) IncCASExhausted(operation string) {
	if m == nil {
		return
	}
	m.casExhausted.WithLabelValues(operation).Inc()
}

// IncStorageError labels the failure with a low-cardinality reason from pkg/db.
func (m *LedgerMetrics) IncStorageError(operation string, err error) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation, db.ClassifyError(err)).Inc()
}

func (m *LedgerMetrics) ObserveCommit(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func (m *LedgerMetrics) IncFraudLogDrop() {
	if m == nil {
		return
	}
	m.fraudLogDrops.Inc()
}

func (m *LedgerMetrics) IncCacheError(operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(operation).Inc()
}
