package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// EntryList is one cursor page of ledger entries, newest first.
type EntryList struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Repository manages persistence for ledger entries and the balance
// projection.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEntries(ctx context.Context, entries []models.LedgerEntry) error
	LockBalances(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]*models.WalletBalance, error)
	SaveBalance(ctx context.Context, balance *models.WalletBalance) error
	FindBalance(ctx context.Context, accountID uuid.UUID) (*models.WalletBalance, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	FindByOperationKey(ctx context.Context, operationKey string) ([]models.LedgerEntry, error)
	SumBuckets(ctx context.Context, accountID uuid.UUID) (map[enums.LedgerBucket]int64, error)
	ListAccountIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEntries(ctx context.Context, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// LockBalances creates missing projection rows, then locks every requested
// row. Callers must pass accountIDs already sorted so concurrent appends
// acquire locks in the same order.
func (r *repository) LockBalances(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]*models.WalletBalance, error) {
	for _, accountID := range accountIDs {
		if err := r.db.WithContext(ctx).Exec(
			`INSERT INTO wallet_balances (account_id) VALUES (?) ON CONFLICT (account_id) DO NOTHING`,
			accountID,
		).Error; err != nil {
			return nil, err
		}
	}

	query := r.db.WithContext(ctx).
		Where("account_id IN ?", accountIDs).
		Order("account_id ASC")
	// SQLite serializes writers on its own; the row lock only exists on Postgres.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []models.WalletBalance
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	balances := make(map[uuid.UUID]*models.WalletBalance, len(rows))
	for i := range rows {
		balances[rows[i].AccountID] = &rows[i]
	}
	return balances, nil
}

func (r *repository) SaveBalance(ctx context.Context, balance *models.WalletBalance) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletBalance{}).
		Where("account_id = ?", balance.AccountID).
		Updates(map[string]any{
			"available_cents":    balance.AvailableCents,
			"pending_cents":      balance.PendingCents,
			"frozen_cents":       balance.FrozenCents,
			"escrow_held_cents":  balance.EscrowHeldCents,
			"platform_fee_cents": balance.PlatformFeeCents,
		}).Error
}

func (r *repository) FindBalance(ctx context.Context, accountID uuid.UUID) (*models.WalletBalance, error) {
	var balance models.WalletBalance
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	decodedCursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("account_id = ?", accountID)
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(entries) > normalizedLimit {
		entries = entries[:normalizedLimit]
		last := entries[len(entries)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &EntryList{Entries: entries, NextCursor: nextCursor}, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("related_order_id = ?", orderID).
		Order("created_at ASC").
		Order("idempotency_key ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindByOperationKey(ctx context.Context, operationKey string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("operation_key = ?", operationKey).
		Order("idempotency_key ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumBuckets(ctx context.Context, accountID uuid.UUID) (map[enums.LedgerBucket]int64, error) {
	type bucketSum struct {
		Bucket enums.LedgerBucket
		Total  int64
	}

	var sums []bucketSum
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("bucket, COALESCE(SUM(amount_cents), 0) AS total").
		Where("account_id = ?", accountID).
		Group("bucket").
		Scan(&sums).Error; err != nil {
		return nil, err
	}

	totals := make(map[enums.LedgerBucket]int64, len(sums))
	for _, sum := range sums {
		totals[sum.Bucket] = sum.Total
	}
	return totals, nil
}

func (r *repository) ListAccountIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.WalletBalance{}).
		Select("account_id").
		Where("account_id > ?", afterID).
		Order("account_id ASC").
		Limit(limit).
		Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
