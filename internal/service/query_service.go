package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"templeadmin/internal/authz"
	"templeadmin/internal/model"
	"templeadmin/internal/repository"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	statsWindow     = 7 * 24 * time.Hour
	myRequestsLimit = 200
)

// --- DTOs ---

type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Status string // processed listing only; empty means every terminal status
}

type RequestPage struct {
	Items []ApprovalRequestResponse `json:"items"`
	Total int64                     `json:"total"`
}

type ApprovalLogResponse struct {
	ID          string  `json:"id"`
	Action      string  `json:"action"`
	PerformedBy *string `json:"performed_by"`
	PerformedAt string  `json:"performed_at"`
	Notes       string  `json:"notes"`
	OldStatus   *string `json:"old_status"`
	NewStatus   *string `json:"new_status"`
}

type ApprovalDetailResponse struct {
	ApprovalRequestResponse
	Logs []ApprovalLogResponse `json:"logs"`
}

type ApprovalStatsResponse struct {
	ByStatus     map[string]int64 `json:"by_status"`
	RecentAction map[string]int64 `json:"recent_actions"`
	Since        string           `json:"since"`
}

// --- Interface ---

// QueryService serves read-only views. Reads are not retried and run at
// read-committed, so counts may lag concurrent writers.
type QueryService interface {
	ListPending(ctx context.Context, actor authz.Actor, q ListQuery) (RequestPage, error)
	ListProcessed(ctx context.Context, actor authz.Actor, q ListQuery) (RequestPage, error)
	GetRequest(ctx context.Context, actor authz.Actor, id string) (ApprovalDetailResponse, error)
	Stats(ctx context.Context, actor authz.Actor) (ApprovalStatsResponse, error)
	ListMyRequests(ctx context.Context, tenantID, contact string) ([]ApprovalRequestResponse, error)
}

type queryService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewQueryService(repo *repository.Repository, logger *zap.Logger) QueryService {
	return &queryService{repo: repo, logger: logger, now: time.Now}
}

// --- Implementation ---

func (s *queryService) ListPending(ctx context.Context, actor authz.Actor, q ListQuery) (RequestPage, error) {
	return s.list(ctx, actor, q, []string{model.StatusPending}, true)
}

func (s *queryService) ListProcessed(ctx context.Context, actor authz.Actor, q ListQuery) (RequestPage, error) {
	statuses := []string{model.StatusApproved, model.StatusRejected, model.StatusCancelled}
	if st := strings.TrimSpace(q.Status); st != "" {
		if !contains(statuses, st) {
			return RequestPage{}, apperr.Validation("status must be approved, rejected or cancelled")
		}
		statuses = []string{st}
	}
	return s.list(ctx, actor, q, statuses, false)
}

func (s *queryService) list(ctx context.Context, actor authz.Actor, q ListQuery, statuses []string, oldestFirst bool) (RequestPage, error) {
	if err := s.authorizeRead(actor); err != nil {
		return RequestPage{}, err
	}
	rows, total, err := s.repo.Approval.List(ctx, repository.RequestFilter{
		TenantID:    actor.TenantID,
		Statuses:    statuses,
		Search:      strings.TrimSpace(q.Search),
		Page:        q.Page,
		Limit:       q.Limit,
		OldestFirst: oldestFirst,
	})
	if err != nil {
		return RequestPage{}, fmt.Errorf("failed to list approval requests: %w", err)
	}

	items := make([]ApprovalRequestResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, toApprovalResponse(r))
	}
	return RequestPage{Items: items, Total: total}, nil
}

func (s *queryService) GetRequest(ctx context.Context, actor authz.Actor, id string) (ApprovalDetailResponse, error) {
	if err := s.authorizeRead(actor); err != nil {
		return ApprovalDetailResponse{}, err
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalDetailResponse{}, apperr.Validation("invalid approval request id")
	}

	req, err := s.repo.Approval.FindByID(ctx, requestID)
	if err != nil {
		return ApprovalDetailResponse{}, err
	}
	if err := authz.AuthorizeTenant(actor, req.TenantID); err != nil {
		return ApprovalDetailResponse{}, err
	}

	logs, err := s.repo.Audit.ListByRequest(ctx, requestID)
	if err != nil {
		return ApprovalDetailResponse{}, fmt.Errorf("failed to load approval history: %w", err)
	}
	out := ApprovalDetailResponse{
		ApprovalRequestResponse: toApprovalResponse(*req),
		Logs:                    make([]ApprovalLogResponse, 0, len(logs)),
	}
	for _, l := range logs {
		out.Logs = append(out.Logs, toLogResponse(l))
	}
	return out, nil
}

func (s *queryService) Stats(ctx context.Context, actor authz.Actor) (ApprovalStatsResponse, error) {
	if err := s.authorizeRead(actor); err != nil {
		return ApprovalStatsResponse{}, err
	}

	counts, err := s.repo.Approval.CountByStatus(ctx, actor.TenantID)
	if err != nil {
		return ApprovalStatsResponse{}, fmt.Errorf("failed to count approval requests: %w", err)
	}
	byStatus := map[string]int64{
		model.StatusPending:   0,
		model.StatusApproved:  0,
		model.StatusRejected:  0,
		model.StatusCancelled: 0,
	}
	for k, v := range counts {
		byStatus[k] = v
	}

	since := s.now().Add(-statsWindow)
	actions, err := s.repo.Audit.CountActionsSince(ctx, actor.TenantID, since)
	if err != nil {
		return ApprovalStatsResponse{}, fmt.Errorf("failed to count recent actions: %w", err)
	}
	recent := map[string]int64{
		model.ActionSubmitted: 0,
		model.ActionApproved:  0,
		model.ActionRejected:  0,
		model.ActionCancelled: 0,
	}
	for k, v := range actions {
		recent[k] = v
	}

	return ApprovalStatsResponse{
		ByStatus:     byStatus,
		RecentAction: recent,
		Since:        since.Format(time.RFC3339),
	}, nil
}

// ListMyRequests is the submitter's own view, so it takes no actor.
func (s *queryService) ListMyRequests(ctx context.Context, tenantIDStr, contact string) ([]ApprovalRequestResponse, error) {
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return nil, apperr.Validation("invalid temple id")
	}
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, apperr.Validation("contact is required")
	}

	rows, _, err := s.repo.Approval.List(ctx, repository.RequestFilter{
		TenantID: tenantID,
		Contact:  contact,
		Page:     1,
		Limit:    myRequestsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	out := make([]ApprovalRequestResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toApprovalResponse(r))
	}
	return out, nil
}

func (s *queryService) authorizeRead(actor authz.Actor) error {
	if err := authz.Authorize(actor, authz.PermApprovalsRead, authz.LevelView); err != nil {
		s.logger.Warn("permission denied",
			zap.String("operation", "read approvals"),
			zap.String("actor", actor.ID()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func toLogResponse(l model.ApprovalLog) ApprovalLogResponse {
	return ApprovalLogResponse{
		ID:          l.ID.String(),
		Action:      l.Action,
		PerformedBy: l.PerformedBy,
		PerformedAt: l.PerformedAt.Format(time.RFC3339Nano),
		Notes:       l.Notes,
		OldStatus:   l.OldStatus,
		NewStatus:   l.NewStatus,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
