package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, disputes and the
// order number counter. Transition and the guarded helpers report whether a
// row was actually updated so the service can tell a lost race from success.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	MarkEarningsReleased(ctx context.Context, orderID uuid.UUID, releasedAt time.Time) (bool, error)
	CreateDispute(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error)
	FindDisputeByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ResolveDisputeRow(ctx context.Context, disputeID uuid.UUID, updates map[string]any) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListDisputes(ctx context.Context, filters DisputeFilters, params pagination.Params) (*DisputeList, error)
	FindDueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindDueEarningsRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
