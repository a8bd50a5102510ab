package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/metrics"
)

const defaultReconcileBatch = 500

// errProjectionDrift marks a wallet whose cached balance disagrees with the
// entry sums. The entries are authoritative; drift means a write path bug.
var errProjectionDrift = errors.New("balance projection drifted from ledger entries")

// LedgerReconcileJobParams configure the reconciliation sweep.
type LedgerReconcileJobParams struct {
	Logger  *logger.Logger
	Ledger  reconcileSource
	Metrics *metrics.LedgerMetrics
	Batch   int
}

type reconcileSource interface {
	ReconcileAll(ctx context.Context, batchSize int, fn func(report *ledger.ReconcileReport) error) error
}

// NewLedgerReconcileJob builds the read-only job that compares every balance
// projection against the signed entry sums.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &ledgerReconcileJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type ledgerReconcileJob struct {
	logg    *logger.Logger
	ledger  reconcileSource
	metrics *metrics.LedgerMetrics
	batch   int
	now     func() time.Time
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	checked, drifted := 0, 0
	err := j.ledger.ReconcileAll(ctx, j.batch, func(report *ledger.ReconcileReport) error {
		checked++
		if report.Balanced {
			return nil
		}
		drifted++
		for _, delta := range report.Deltas {
			if delta.DeltaCents() == 0 {
				continue
			}
			j.metrics.IncImbalance(string(delta.Bucket))
			driftCtx := j.logg.WithFields(ctx, map[string]any{
				"account_id":      report.AccountID,
				"bucket":          delta.Bucket,
				"projected_cents": delta.ProjectedCents,
				"derived_cents":   delta.DerivedCents,
				"delta_cents":     delta.DeltaCents(),
			})
			j.logg.Error(driftCtx, "ledger reconciliation drift", errProjectionDrift)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger reconcile sweep: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": checked,
		"drifted": drifted,
	})
	j.logg.Info(logCtx, "ledger reconcile sweep complete")
	return nil
}
