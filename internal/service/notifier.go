package service

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalEvent is published after a transition has been committed.
type ApprovalEvent struct {
	Type      string    `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// Notifier delivers approval events to interested clients. Publish must not block.
type Notifier interface {
	Publish(event ApprovalEvent)
}

type noopNotifier struct{}

func (noopNotifier) Publish(ApprovalEvent) {}
