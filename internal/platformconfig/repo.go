package platformconfig

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
)

// Repository manages persistence for platform config entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, key string) (*models.PlatformConfigEntry, error)
	List(ctx context.Context) ([]models.PlatformConfigEntry, error)
	Upsert(ctx context.Context, entry *models.PlatformConfigEntry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a config repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, key string) (*models.PlatformConfigEntry, error) {
	var entry models.PlatformConfigEntry
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context) ([]models.PlatformConfigEntry, error) {
	var entries []models.PlatformConfigEntry
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Upsert(ctx context.Context, entry *models.PlatformConfigEntry) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO platform_config (key, value, updated_by, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = CURRENT_TIMESTAMP`,
			entry.Key, entry.Value, entry.UpdatedBy).
		Error
}
