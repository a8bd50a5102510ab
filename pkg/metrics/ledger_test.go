package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsCountsImbalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)
	metrics.IncImbalance("available")
	metrics.IncImbalance("available")
	metrics.IncImbalance("frozen")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_reconcile_imbalance", "bucket", "available"); err != nil {
		t.Fatalf("fetch available: %v", err)
	} else if got != 2 {
		t.Fatalf("expected available=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "ledger_reconcile_imbalance", "bucket", "frozen"); err != nil {
		t.Fatalf("fetch frozen: %v", err)
	} else if got != 1 {
		t.Fatalf("expected frozen=1, got %f", got)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var metrics *LedgerMetrics
	metrics.IncImbalance("available")
	NewLedgerMetrics(nil).IncImbalance("available")
}
