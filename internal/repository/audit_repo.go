package repository

import (
	"context"
	"time"

	"templeadmin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository is the append-only store of approval log entries.
// It deliberately has no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.ApprovalLog) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalLog, error)
	CountActionsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.ApprovalLog) error {
	return mapError(GetDB(ctx, r.db).Create(entry).Error)
}

// ListByRequest returns the history newest first.
func (r *auditRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalLog, error) {
	var logs []model.ApprovalLog
	if err := GetDB(ctx, r.db).
		Where("request_id = ?", requestID).
		Order("performed_at DESC").
		Order("id DESC").
		Find(&logs).Error; err != nil {
		return nil, mapError(err)
	}
	return logs, nil
}

func (r *auditRepository) CountActionsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Action string
		Count  int64
	}
	if err := GetDB(ctx, r.db).Model(&model.ApprovalLog{}).
		Select("action, COUNT(*) AS count").
		Where("tenant_id = ? AND performed_at >= ?", tenantID, since).
		Group("action").
		Scan(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Action] = row.Count
	}
	return counts, nil
}
