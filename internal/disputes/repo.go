package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credential store bound to the provided database.
// The table is written by the provisioning pipeline; this service only reads
// it during step-up checks.
func NewRepository(db *gorm.DB) CredentialStore {
	return &repository{db: db}
}

func (r *repository) Find(ctx context.Context, accountID uuid.UUID) (*models.AdminCredential, error) {
	var cred models.AdminCredential
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}
