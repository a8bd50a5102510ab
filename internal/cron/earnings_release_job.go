package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// EarningsReleaseJobParams configure the seller protection release scheduler.
type EarningsReleaseJobParams struct {
	Logger *logger.Logger
	Orders earningsReleaseSource
	Batch  int
}

type earningsReleaseSource interface {
	DueEarningsRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ReleaseEarnings(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// NewEarningsReleaseJob builds the job that moves seller earnings from
// pending to available once the protection window has passed.
func NewEarningsReleaseJob(params EarningsReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultOrderScanBatch
	}
	return &earningsReleaseJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type earningsReleaseJob struct {
	logg   *logger.Logger
	orders earningsReleaseSource
	batch  int
	now    func() time.Time
}

func (j *earningsReleaseJob) Name() string { return "earnings-release" }

func (j *earningsReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	due, err := j.orders.DueEarningsRelease(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("scan earnings release orders: %w", err)
	}

	var errs []error
	released, skipped := 0, 0
	for _, order := range due {
		if _, err := j.orders.ReleaseEarnings(ctx, order.ID); err != nil {
			if isOrderRaceLoss(err) {
				skipped++
				raceCtx := j.logg.WithFields(ctx, map[string]any{
					"order_id": order.ID,
				})
				j.logg.Warn(raceCtx, "earnings already released; skipping")
				continue
			}
			errs = append(errs, fmt.Errorf("release earnings for order %s: %w", order.ID, err))
			continue
		}
		released++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"released": released,
		"skipped":  skipped,
		"failed":   len(errs),
	})
	j.logg.Info(logCtx, "earnings release loop complete")
	return multierr.Combine(errs...)
}
