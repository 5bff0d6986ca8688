// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency record states. A record is created InFlight on first
// observation of a key and transitions exactly once to Completed or Failed.
const (
	IdemInFlight  = 0
	IdemCompleted = 1
	IdemFailed    = 2
)

// Idempotency records the outcome of a previously processed submission,
// keyed by (user_id, key). It lets duplicate submissions within the TTL
// window observe the original outcome instead of re-invoking the upstream
// analysis.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	LogID     string    `gorm:"type:TEXT NOT NULL;default:''"`
	ErrorCode string    `gorm:"type:TEXT NOT NULL;default:''"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
