package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// Dispute captures a buyer or seller challenge against a delivered order.
// At most one dispute exists per order; the row is immutable once resolved.
type Dispute struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID                `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_disputes_order_id" json:"order_id"`
	OpenedBy   uuid.UUID                `gorm:"column:opened_by;type:uuid;not null" json:"opened_by"`
	Reason     string                   `gorm:"column:reason;type:text;not null" json:"reason"`
	OpenedAt   time.Time                `gorm:"column:opened_at;not null" json:"opened_at"`
	Resolution *enums.DisputeResolution `gorm:"column:resolution;type:dispute_resolution" json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID               `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time               `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	Note       *string                  `gorm:"column:note" json:"note,omitempty"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
