package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// Filters narrow the admin action list.
type Filters struct {
	ActorID    *uuid.UUID
	ActionType *enums.AdminActionType
	TargetType *enums.TargetType
	TargetID   *uuid.UUID
}

// ActionList is one cursor page of admin actions.
type ActionList struct {
	Actions    []models.AdminAction `json:"actions"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Repository manages persistence for admin actions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, action *models.AdminAction) error
	List(ctx context.Context, params pagination.Params, filters Filters) (*ActionList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, action *models.AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters Filters) (*ActionList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	decodedCursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.AdminAction{})
	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.ActionType != nil {
		query = query.Where("action_type = ?", *filters.ActionType)
	}
	if filters.TargetType != nil {
		query = query.Where("target_type = ?", *filters.TargetType)
	}
	if filters.TargetID != nil {
		query = query.Where("target_id = ?", *filters.TargetID)
	}
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var actions []models.AdminAction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Find(&actions).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(actions) > normalizedLimit {
		actions = actions[:normalizedLimit]
		last := actions[len(actions)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &ActionList{Actions: actions, NextCursor: nextCursor}, nil
}
