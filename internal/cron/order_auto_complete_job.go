package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultOrderScanBatch = 100

// OrderAutoCompleteJobParams configure the auto-complete scheduler.
type OrderAutoCompleteJobParams struct {
	Logger *logger.Logger
	Orders autoCompleteSource
	Batch  int
}

type autoCompleteSource interface {
	DueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Complete(ctx context.Context, input orders.CompleteInput) (*models.Order, error)
}

// NewOrderAutoCompleteJob builds the job that settles delivered orders whose
// dispute window has closed.
func NewOrderAutoCompleteJob(params OrderAutoCompleteJobParams) (Job, error) {
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
	return &orderAutoCompleteJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderAutoCompleteJob struct {
	logg   *logger.Logger
	orders autoCompleteSource
	batch  int
	now    func() time.Time
}

func (j *orderAutoCompleteJob) Name() string { return "order-auto-complete" }

func (j *orderAutoCompleteJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	due, err := j.orders.DueAutoComplete(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("scan auto-complete orders: %w", err)
	}

	var errs []error
	completed, skipped := 0, 0
	for _, order := range due {
		_, err := j.orders.Complete(ctx, orders.CompleteInput{
			OrderID: order.ID,
			By:      enums.CompletedByAuto,
		})
		if err != nil {
			// An order disputed or settled since the scan is not this
			// cycle's problem; only store-level failures surface.
			if isOrderRaceLoss(err) {
				skipped++
				raceCtx := j.logg.WithFields(ctx, map[string]any{
					"order_id": order.ID,
				})
				j.logg.Warn(raceCtx, "order moved before auto-complete; skipping")
				continue
			}
			errs = append(errs, fmt.Errorf("auto-complete order %s: %w", order.ID, err))
			continue
		}
		completed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"completed": completed,
		"skipped":   skipped,
		"failed":    len(errs),
	})
	j.logg.Info(logCtx, "order auto-complete loop complete")
	return multierr.Combine(errs...)
}

// isOrderRaceLoss reports whether the error means another actor moved the
// order first, which the next scan will simply no longer see.
func isOrderRaceLoss(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeInvalidTransition, pkgerrors.CodeStaleState, pkgerrors.CodeConflict, pkgerrors.CodeNotFound:
		return true
	}
	return false
}
