package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLedgerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewLedgerMetrics(registry, Config{ServiceName: "edupoints", Environment: "test"})

	m.IncCASConflict(OperationEarn)
	m.IncCASConflict(OperationEarn)
	m.IncCASExhausted(OperationSpend)
	m.IncStorageError(OperationEarn, &pgconn.PgError{Code: "40001"})
	m.IncStorageError(OperationEarn, context.DeadlineExceeded)
	m.IncStorageError(OperationSpend, errors.New("boom"))
	m.ObserveCommit(OperationEarn, "committed", 5*time.Millisecond)
	m.IncFraudLogDrop()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.casConflicts.WithLabelValues(OperationEarn)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.casExhausted.WithLabelValues(OperationSpend)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storageErrors.WithLabelValues(OperationEarn, "serialization_failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storageErrors.WithLabelValues(OperationEarn, "timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storageErrors.WithLabelValues(OperationSpend, "unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fraudLogDrops))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commitDuration))
}

func TestNilLedgerMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.IncCASConflict(OperationEarn)
		m.IncStorageError(OperationEarn, errors.New("x"))
		m.ObserveCommit(OperationSpend, "rejected", time.Millisecond)
		m.IncFraudLogDrop()
		m.IncCacheError("get")
	})
}
