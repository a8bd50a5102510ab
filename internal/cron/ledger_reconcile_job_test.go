package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeReconcileLedger struct {
	reports   []*ledger.ReconcileReport
	err       error
	lastBatch int
}

func (f *fakeReconcileLedger) ReconcileAll(ctx context.Context, batchSize int, fn func(report *ledger.ReconcileReport) error) error {
	f.lastBatch = batchSize
	if f.err != nil {
		return f.err
	}
	for _, report := range f.reports {
		if err := fn(report); err != nil {
			return err
		}
	}
	return nil
}

func newReconcileJob(t *testing.T, source *fakeReconcileLedger, m *metrics.LedgerMetrics) *ledgerReconcileJob {
	t.Helper()

	jobIface, err := NewLedgerReconcileJob(LedgerReconcileJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Ledger:  source,
		Metrics: m,
	})
	if err != nil {
		t.Fatalf("NewLedgerReconcileJob: %v", err)
	}
	job, ok := jobIface.(*ledgerReconcileJob)
	if !ok {
		t.Fatalf("expected ledgerReconcileJob, got %T", jobIface)
	}
	return job
}

func TestLedgerReconcileJobSweepsCleanLedger(t *testing.T) {
	source := &fakeReconcileLedger{reports: []*ledger.ReconcileReport{
		{AccountID: uuid.New(), Balanced: true},
		{AccountID: uuid.New(), Balanced: true},
	}}
	job := newReconcileJob(t, source, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if source.lastBatch != defaultReconcileBatch {
		t.Fatalf("expected batch %d, got %d", defaultReconcileBatch, source.lastBatch)
	}
}

func TestLedgerReconcileJobReportsDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	source := &fakeReconcileLedger{reports: []*ledger.ReconcileReport{
		{AccountID: uuid.New(), Balanced: true},
		{
			AccountID: uuid.New(),
			Balanced:  false,
			Deltas: []ledger.BucketDelta{
				{Bucket: enums.LedgerBucketAvailable, ProjectedCents: 1050, DerivedCents: 1000},
				{Bucket: enums.LedgerBucketPending, ProjectedCents: 0, DerivedCents: 0},
			},
		},
	}}
	job := newReconcileJob(t, source, ledgerMetrics)

	// Drift is an alert, not a cycle failure: the sweep still succeeds.
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	var counted float64
	for _, mf := range mfs {
		if mf.GetName() != "ledger_reconcile_imbalance" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			counted += metric.GetCounter().GetValue()
		}
	}
	if counted != 1 {
		t.Fatalf("expected exactly the drifted bucket counted, got %f", counted)
	}
}

func TestLedgerReconcileJobPropagatesSweepError(t *testing.T) {
	source := &fakeReconcileLedger{err: errors.New("boom")}
	job := newReconcileJob(t, source, nil)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
}
