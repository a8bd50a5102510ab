package wallets

import (
	"context"
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

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWithdrawal(ctx context.Context, withdrawal *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	if err := r.db.WithContext(ctx).Create(withdrawal).Error; err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (r *repository) FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (r *repository) TransitionWithdrawal(ctx context.Context, id uuid.UUID, from enums.WithdrawalStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetWithdrawalLedgerEntry(ctx context.Context, id, entryID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ?", id).
		Update("ledger_entry_id", entryID).
		Error
}

func (r *repository) ListWithdrawals(ctx context.Context, filters WithdrawalFilters, params pagination.Params) (*WithdrawalList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{})
	if filters.AccountID != nil {
		query = query.Where("account_id = ?", *filters.AccountID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.WithdrawalRequest
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
	return &WithdrawalList{Withdrawals: rows, NextCursor: nextCursor}, nil
}

func (r *repository) CreateGiftCard(ctx context.Context, card *models.GiftCard) (*models.GiftCard, error) {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}
	return card, nil
}

func (r *repository) FindGiftCardByCode(ctx context.Context, code string, lock bool) (*models.GiftCard, error) {
	query := r.db.WithContext(ctx).Where("code = ?", code)
	// SQLite serializes writers on its own; the row lock only exists on Postgres.
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var card models.GiftCard
	if err := query.First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) FindGiftCard(ctx context.Context, id uuid.UUID) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) RedeemGiftCardRow(ctx context.Context, id, redeemedBy uuid.UUID, redeemedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("id = ? AND status = ?", id, enums.GiftCardStatusActive).
		Updates(map[string]any{
			"status":      enums.GiftCardStatusRedeemed,
			"redeemed_by": redeemedBy,
			"redeemed_at": redeemedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
