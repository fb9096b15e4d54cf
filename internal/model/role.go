package model

import (
	"time"

	"github.com/google/uuid"
)

// Permission is an entry in the permission catalog, e.g. "approvals.approve"
type Permission struct {
	ID    string `gorm:"type:varchar(100);primaryKey" json:"id"`
	Name  string `gorm:"type:varchar(255);not null" json:"name"`
	Group string `gorm:"type:varchar(50);not null;index" json:"group"`
}

// PermissionGrant gives one user an access level on one permission.
type PermissionGrant struct {
	UserID       uuid.UUID   `gorm:"type:uuid;primaryKey" json:"user_id"`
	PermissionID string      `gorm:"type:varchar(100);primaryKey" json:"permission_id"`
	Permission   *Permission `gorm:"foreignKey:PermissionID" json:"-"`
	AccessLevel  string      `gorm:"type:varchar(10);not null" json:"access_level"`
	GrantedBy    *uuid.UUID  `gorm:"type:uuid" json:"granted_by"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
