package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks reconciliation health of the wallet ledger.
type LedgerMetrics struct {
	imbalance *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	imbalance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reconcile_imbalance",
		Help: "Buckets whose balance projection drifted from the signed entry sums.",
	}, []string{"bucket"})
	reg.MustRegister(imbalance)
	return &LedgerMetrics{imbalance: imbalance}
}

// IncImbalance counts one drifted bucket found during reconciliation.
func (l *LedgerMetrics) IncImbalance(bucket string) {
	if l == nil || l.imbalance == nil {
		return
	}
	l.imbalance.WithLabelValues(normalizeLabel(bucket)).Inc()
}
