package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/google/uuid"
)

type fakeAutoCompleteOrders struct {
	due        []models.Order
	scanErr    error
	lastCutoff time.Time
	lastLimit  int
	completeFn func(input orders.CompleteInput) (*models.Order, error)
	completed  []orders.CompleteInput
}

func (f *fakeAutoCompleteOrders) DueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.lastCutoff = cutoff
	f.lastLimit = limit
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.due, nil
}

func (f *fakeAutoCompleteOrders) Complete(ctx context.Context, input orders.CompleteInput) (*models.Order, error) {
	f.completed = append(f.completed, input)
	if f.completeFn != nil {
		return f.completeFn(input)
	}
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusCompleted}, nil
}

func newAutoCompleteJob(t *testing.T, source *fakeAutoCompleteOrders) *orderAutoCompleteJob {
	t.Helper()

	jobIface, err := NewOrderAutoCompleteJob(OrderAutoCompleteJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Orders: source,
	})
	if err != nil {
		t.Fatalf("NewOrderAutoCompleteJob: %v", err)
	}
	job, ok := jobIface.(*orderAutoCompleteJob)
	if !ok {
		t.Fatalf("expected orderAutoCompleteJob, got %T", jobIface)
	}
	return job
}

func TestOrderAutoCompleteJobCompletesDueOrders(t *testing.T) {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	source := &fakeAutoCompleteOrders{due: []models.Order{
		{ID: uuid.New(), Status: enums.OrderStatusDelivered},
		{ID: uuid.New(), Status: enums.OrderStatusDelivered},
	}}
	job := newAutoCompleteJob(t, source)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !source.lastCutoff.Equal(now) {
		t.Fatalf("expected cutoff %s, got %s", now, source.lastCutoff)
	}
	if source.lastLimit != defaultOrderScanBatch {
		t.Fatalf("expected batch %d, got %d", defaultOrderScanBatch, source.lastLimit)
	}
	if len(source.completed) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(source.completed))
	}
	for _, input := range source.completed {
		if input.By != enums.CompletedByAuto {
			t.Fatalf("expected auto completion, got %s", input.By)
		}
		if input.ActorID != uuid.Nil {
			t.Fatal("auto completion carries no actor")
		}
	}
}

func TestOrderAutoCompleteJobSkipsOrdersThatMoved(t *testing.T) {
	disputed := uuid.New()
	source := &fakeAutoCompleteOrders{due: []models.Order{
		{ID: uuid.New()},
		{ID: disputed},
		{ID: uuid.New()},
	}}
	source.completeFn = func(input orders.CompleteInput) (*models.Order, error) {
		if input.OrderID == disputed {
			return nil, pkgerrors.New(pkgerrors.CodeStaleState, "order state changed; reload and retry")
		}
		return &models.Order{ID: input.OrderID}, nil
	}
	job := newAutoCompleteJob(t, source)

	// A dispute opened between scan and transition loses nothing: the
	// cycle succeeds and the order is simply left alone.
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(source.completed) != 3 {
		t.Fatalf("expected all 3 attempts, got %d", len(source.completed))
	}
}

func TestOrderAutoCompleteJobSurfacesStoreErrors(t *testing.T) {
	broken := uuid.New()
	source := &fakeAutoCompleteOrders{due: []models.Order{
		{ID: broken},
		{ID: uuid.New()},
	}}
	source.completeFn = func(input orders.CompleteInput) (*models.Order, error) {
		if input.OrderID == broken {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "update order")
		}
		return &models.Order{ID: input.OrderID}, nil
	}
	job := newAutoCompleteJob(t, source)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the store failure to surface")
	}
	// The failure did not stop the rest of the batch.
	if len(source.completed) != 2 {
		t.Fatalf("expected both attempts, got %d", len(source.completed))
	}
}

func TestOrderAutoCompleteJobScanErrorFailsCycle(t *testing.T) {
	source := &fakeAutoCompleteOrders{scanErr: errors.New("boom")}
	job := newAutoCompleteJob(t, source)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
	if len(source.completed) != 0 {
		t.Fatal("no completions should run after a failed scan")
	}
}
