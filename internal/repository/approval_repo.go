package repository

import (
	"context"
	"strings"
	"time"

	"templeadmin/internal/model"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter selects approvable requests for listing.
type RequestFilter struct {
	TenantID    uuid.UUID
	Statuses    []string
	Contact     string // exact match on requester contact
	Search      string // case-insensitive substring over name, contact and reference
	Page        int
	Limit       int
	OldestFirst bool
}

// OverlapQuery describes a candidate window for the conflict check.
type OverlapQuery struct {
	TenantID     uuid.UUID
	ResourceKind string
	From         time.Time
	To           time.Time
	SlotTime     *string // nil: time-of-day is not part of the overlap
	ExcludeID    uuid.UUID
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovableRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovableRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovableRequest, error)
	Update(ctx context.Context, req *model.ApprovableRequest) error
	ReferenceExists(ctx context.Context, tenantID uuid.UUID, referenceNo string) (bool, error)
	HasApprovedOverlap(ctx context.Context, q OverlapQuery) (bool, error)
	List(ctx context.Context, filter RequestFilter) ([]model.ApprovableRequest, int64, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovableRequest) error {
	return mapError(GetDB(ctx, r.db).Create(req).Error)
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovableRequest, error) {
	var req model.ApprovableRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFoundAs(err, "approval request not found")
	}
	return &req, nil
}

// FindByIDForUpdate row-locks the request until the surrounding transaction ends.
func (r *approvalRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovableRequest, error) {
	var req model.ApprovableRequest
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFoundAs(err, "approval request not found")
	}
	return &req, nil
}

func (r *approvalRepository) Update(ctx context.Context, req *model.ApprovableRequest) error {
	return mapError(GetDB(ctx, r.db).Omit(clause.Associations).Save(req).Error)
}

func (r *approvalRepository) ReferenceExists(ctx context.Context, tenantID uuid.UUID, referenceNo string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ApprovableRequest{}).
		Where("tenant_id = ? AND reference_no = ?", tenantID, referenceNo).
		Count(&count).Error
	if err != nil {
		return false, mapError(err)
	}
	return count > 0, nil
}

// HasApprovedOverlap applies closed-interval overlap: a.from <= b.to AND b.from <= a.to.
func (r *approvalRepository) HasApprovedOverlap(ctx context.Context, q OverlapQuery) (bool, error) {
	query := GetDB(ctx, r.db).Model(&model.ApprovableRequest{}).
		Where("tenant_id = ? AND resource_kind = ? AND status = ?", q.TenantID, q.ResourceKind, model.StatusApproved).
		Where("from_date <= ? AND ? <= to_date", q.To, q.From)
	if q.SlotTime != nil {
		query = query.Where("slot_time = ?", *q.SlotTime)
	}
	if q.ExcludeID != uuid.Nil {
		query = query.Where("id <> ?", q.ExcludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, mapError(err)
	}
	return count > 0, nil
}

func (r *approvalRepository) List(ctx context.Context, filter RequestFilter) ([]model.ApprovableRequest, int64, error) {
	var requests []model.ApprovableRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("tenant_id = ?", filter.TenantID)
		if len(filter.Statuses) > 0 {
			q = q.Where("status IN ?", filter.Statuses)
		}
		if filter.Contact != "" {
			q = q.Where("requester_contact = ?", filter.Contact)
		}
		if s := strings.TrimSpace(filter.Search); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("(LOWER(requester_name) LIKE ? OR LOWER(requester_contact) LIKE ? OR LOWER(COALESCE(reference_no, '')) LIKE ?)", like, like, like)
		}
		return q
	}

	if err := db.Model(&model.ApprovableRequest{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}

	order := "updated_at DESC"
	if filter.OldestFirst {
		order = "submitted_at ASC"
	}
	fetch := db.Scopes(scope).Order(order).Order("id")
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		fetch = fetch.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}
	if err := fetch.Find(&requests).Error; err != nil {
		return nil, 0, mapError(err)
	}

	return requests, total, nil
}

func (r *approvalRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := GetDB(ctx, r.db).Model(&model.ApprovableRequest{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func notFoundAs(err error, msg string) error {
	mapped := mapError(err)
	if apperr.Is(mapped, apperr.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return mapped
}
