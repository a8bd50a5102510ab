package listings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
)

// Info is the narrow listing surface the settlement core reads. Catalog
// management lives in another system; orders only need price, seller, and
// whether the listing can still be bought.
type Info struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	Title       string
	PriceCents  int64
	Purchasable bool
}

// Provider exposes listing reads and the mark-as-sold hook used during order
// creation. Both run inside the caller's transaction when one is supplied.
type Provider interface {
	Get(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) (*Info, error)
	MarkSold(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) error
}

type provider struct {
	db *gorm.DB
}

// NewProvider returns a listing provider bound to the provided database.
func NewProvider(db *gorm.DB) Provider {
	return &provider{db: db}
}

func (p *provider) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *provider) Get(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) (*Info, error) {
	var listing models.Listing
	if err := p.conn(tx).WithContext(ctx).Where("id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return &Info{
		ID:          listing.ID,
		SellerID:    listing.SellerID,
		Title:       listing.Title,
		PriceCents:  listing.PriceCents,
		Purchasable: listing.Status == enums.ListingStatusActive,
	}, nil
}

// MarkSold flips active -> sold. The status guard makes concurrent purchases
// race safely: exactly one caller wins, the rest see ListingUnavailable.
func (p *provider) MarkSold(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) error {
	res := p.conn(tx).WithContext(ctx).Exec(`
		UPDATE listings
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, enums.ListingStatusSold, listingID, enums.ListingStatusActive)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark listing sold")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing is not available for purchase")
	}
	return nil
}
