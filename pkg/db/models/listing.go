package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// Listing is the narrow sales-item surface the settlement core reads.
// Catalog management lives elsewhere; this row exists to price orders and to
// flip active -> sold on a successful purchase.
type Listing struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID   uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title      string              `gorm:"column:title;type:text;not null"`
	PriceCents int64               `gorm:"column:price_cents;type:bigint;not null"`
	Status     enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'active'"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
