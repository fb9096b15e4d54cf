package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Request status values. pending is the only non-terminal state.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Resource kinds accepted by the approval workflow
const (
	KindCeremonySlot = "ceremony-slot"
	KindHallBooking  = "hall-booking"
	KindFoodService  = "food-service"
	KindDonationItem = "donation-item"
)

// ApprovableRequest is a time-bound resource request submitted by a devotee or
// staff member and decided by an administrator.
type ApprovableRequest struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID         uuid.UUID        `gorm:"type:uuid;not null;index:idx_requests_queue,priority:1" json:"tenant_id"`
	Tenant           *Tenant          `gorm:"foreignKey:TenantID" json:"-"`
	ResourceKind     string           `gorm:"type:varchar(30);not null;index" json:"resource_kind"`
	RequesterName    string           `gorm:"type:varchar(255)" json:"requester_name"`
	RequesterContact string           `gorm:"type:varchar(100);not null;index" json:"requester_contact"`
	FromDate         time.Time        `gorm:"type:date;not null" json:"from_date"`
	ToDate           time.Time        `gorm:"type:date;not null" json:"to_date"`
	SlotTime         *string          `gorm:"type:varchar(5)" json:"time,omitempty"` // HH:MM
	SlotKey          string           `gorm:"type:varchar(5);not null;default:''" json:"-"`
	Exclusive        bool             `gorm:"not null;default:false" json:"-"`
	Title            string           `gorm:"type:varchar(255)" json:"title"`
	Details          datatypes.JSON   `gorm:"type:jsonb" json:"details,omitempty"`
	ReferenceNo      *string          `gorm:"type:varchar(100)" json:"reference_no,omitempty"`
	Quantity         *int             `json:"quantity,omitempty"`
	Amount           *decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount,omitempty"`
	Status           string           `gorm:"type:varchar(20);not null;default:'pending';index:idx_requests_queue,priority:2" json:"status"`
	SubmittedBy      string           `gorm:"type:varchar(100);not null;index" json:"submitted_by"`
	SubmittedAt      time.Time        `gorm:"not null;index:idx_requests_queue,priority:3" json:"submitted_at"`
	ApprovedBy       *string          `gorm:"type:varchar(100)" json:"approved_by"`
	ApprovedAt       *time.Time       `json:"approved_at"`
	RejectionReason  *string          `gorm:"type:text" json:"rejection_reason"`
	AdminNotes       *string          `gorm:"type:text" json:"admin_notes"`
	Logs             []ApprovalLog    `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsPending reports whether a transition can still be applied.
func (r *ApprovableRequest) IsPending() bool {
	return r.Status == StatusPending
}
