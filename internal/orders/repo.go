package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const orderNumberPrefix = "SC"

// NextOrderNumber increments the single counter row and formats the next
// order number. The row is locked on Postgres so concurrent checkouts
// serialize; SQLite serializes writers on its own.
func (r *repository) NextOrderNumber(ctx context.Context) (string, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var counter models.OrderCounter
	if err := query.First(&counter, "id = ?", 1).Error; err != nil {
		return "", err
	}

	next := counter.LastValue + 1
	result := r.db.WithContext(ctx).
		Model(&models.OrderCounter{}).
		Where("id = ? AND last_value = ?", counter.ID, counter.LastValue).
		Update("last_value", next)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("order counter moved concurrently")
	}
	return fmt.Sprintf("%s%d", orderNumberPrefix, next), nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Transition applies updates only while the row still holds the expected
// status. A false return means another writer got there first.
func (r *repository) Transition(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkEarningsReleased(ctx context.Context, orderID uuid.UUID, releasedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND earnings_released_at IS NULL", orderID, enums.OrderStatusCompleted).
		Update("earnings_released_at", releasedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateDispute(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if err := r.db.WithContext(ctx).Create(dispute).Error; err != nil {
		return nil, err
	}
	return dispute, nil
}

func (r *repository) FindDisputeByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).First(&dispute, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

// ResolveDisputeRow stamps the resolution while the row is still open.
func (r *repository) ResolveDisputeRow(ctx context.Context, disputeID uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND resolution IS NULL", disputeID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.Order{})
	switch {
	case filters.Side != nil && *filters.Side == OrderSideBuyer:
		query = query.Where("buyer_id = ?", accountID)
	case filters.Side != nil && *filters.Side == OrderSideSeller:
		query = query.Where("seller_id = ?", accountID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", accountID, accountID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &OrderList{Orders: rows, NextCursor: nextCursor}, nil
}

func (r *repository) ListDisputes(ctx context.Context, filters DisputeFilters, params pagination.Params) (*DisputeList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.Dispute{})
	if filters.Open != nil {
		if *filters.Open {
			query = query.Where("resolution IS NULL")
		} else {
			query = query.Where("resolution IS NOT NULL")
		}
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Dispute
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &DisputeList{Disputes: rows, NextCursor: nextCursor}, nil
}

func (r *repository) FindDueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("status = ? AND dispute_deadline IS NOT NULL AND dispute_deadline <= ?", enums.OrderStatusDelivered, cutoff).
		Order("dispute_deadline ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindDueEarningsRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("status = ? AND earnings_released_at IS NULL AND protection_release_at IS NOT NULL AND protection_release_at <= ?",
			enums.OrderStatusCompleted, cutoff).
		Order("protection_release_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
