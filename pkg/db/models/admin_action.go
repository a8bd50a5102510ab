package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

// AdminAction is the append-only audit trail for privileged operations. Rows
// are written in the same transaction as the state they describe, so a
// committed mutation always has its audit record.
type AdminAction struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID            uuid.UUID                 `gorm:"column:actor_id;type:uuid;not null" json:"actor_id"`
	ActorRole          enums.Role                `gorm:"column:actor_role;type:role;not null" json:"actor_role"`
	ActionType         enums.AdminActionType     `gorm:"column:action_type;type:admin_action_type;not null" json:"action_type"`
	TargetType         enums.TargetType          `gorm:"column:target_type;type:target_type;not null" json:"target_type"`
	TargetID           uuid.UUID                 `gorm:"column:target_id;type:uuid;not null" json:"target_id"`
	Reason             string                    `gorm:"column:reason;type:text;not null" json:"reason"`
	IPAddress          *string                   `gorm:"column:ip_address" json:"ip_address,omitempty"`
	ConfirmationMethod *enums.ConfirmationMethod `gorm:"column:confirmation_method;type:confirmation_method" json:"confirmation_method,omitempty"`
	Details            types.JSONMap             `gorm:"column:details;type:jsonb;serializer:json" json:"details,omitempty"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
