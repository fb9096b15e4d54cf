package model

import (
	"time"

	"github.com/google/uuid"
)

// Approval log actions
const (
	ActionSubmitted = "submitted"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionCancelled = "cancelled"
)

// ApprovalLog is the immutable record of one status transition.
// Rows are only ever inserted, in the same transaction as the status change.
type ApprovalLog struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	Action      string    `gorm:"type:varchar(20);not null;index" json:"action"`
	PerformedBy *string   `gorm:"type:varchar(100)" json:"performed_by"` // nil for anonymous submission
	PerformedAt time.Time `gorm:"not null;index" json:"performed_at"`
	Notes       string    `gorm:"type:text" json:"notes"`
	OldStatus   *string   `gorm:"type:varchar(20)" json:"old_status"`
	NewStatus   *string   `gorm:"type:varchar(20)" json:"new_status"`
}
