package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformConfigEntry is one operator-tunable runtime setting. Values are
// strings; each consumer parses and validates its own keys.
type PlatformConfigEntry struct {
	Key       string     `gorm:"column:key;primaryKey" json:"key"`
	Value     string     `gorm:"column:value;type:text;not null" json:"value"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid" json:"updated_by,omitempty"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
