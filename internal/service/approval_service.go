package service

import (
	"context"
	"encoding/json"
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

// --- DTOs ---

type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ApproveRequestDTO struct {
	Notes string `json:"notes"`
}

type RejectRequestDTO struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type CancelRequestDTO struct {
	Contact string `json:"contact" binding:"required"`
	Reason  string `json:"reason"`
}

// Bulk actions
const (
	BulkApprove = "approve"
	BulkReject  = "reject"
)

type BulkActionDTO struct {
	Action     string   `json:"action" binding:"required,oneof=approve reject"`
	RequestIDs []string `json:"request_ids" binding:"required,min=1"`
	Reason     string   `json:"reason"`
	Notes      string   `json:"notes"`
}

type BulkActionResult struct {
	ApprovedCount int      `json:"approved_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors"`
}

type ApprovalRequestResponse struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	ResourceKind     string          `json:"resource_kind"`
	RequesterName    string          `json:"requester_name"`
	RequesterContact string          `json:"requester_contact"`
	FromDate         string          `json:"from_date"`
	ToDate           string          `json:"to_date"`
	Time             *string         `json:"time,omitempty"`
	Title            string          `json:"title"`
	Details          json.RawMessage `json:"details,omitempty" swaggertype:"object"`
	ReferenceNo      *string         `json:"reference_no,omitempty"`
	Quantity         *int            `json:"quantity,omitempty"`
	Amount           *string         `json:"amount,omitempty"`
	Status           string          `json:"status"`
	SubmittedBy      string          `json:"submitted_by"`
	SubmittedAt      string          `json:"submitted_at"`
	ApprovedBy       *string         `json:"approved_by"`
	ApprovedAt       *string         `json:"approved_at"`
	RejectionReason  *string         `json:"rejection_reason"`
	AdminNotes       *string         `json:"admin_notes"`
}

// --- Interface ---

// ApprovalService owns the request lifecycle:
// pending -> approved | rejected | cancelled, all terminal.
type ApprovalService interface {
	Submit(ctx context.Context, tenantID string, req SubmitRequestDTO) (SubmitResponse, error)
	Approve(ctx context.Context, actor authz.Actor, id string, notes string) (ApprovalRequestResponse, error)
	Reject(ctx context.Context, actor authz.Actor, id string, reason, notes string) (ApprovalRequestResponse, error)
	Cancel(ctx context.Context, tenantID, id, requester, reason string) (ApprovalRequestResponse, error)
	BulkAction(ctx context.Context, actor authz.Actor, req BulkActionDTO) (BulkActionResult, error)
}

type approvalService struct {
	repo      *repository.Repository
	policies  *PolicyRegistry
	validator *RequestValidator
	detector  *ConflictDetector
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewApprovalService(repo *repository.Repository, policies *PolicyRegistry, notifier Notifier, logger *zap.Logger) ApprovalService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &approvalService{
		repo:      repo,
		policies:  policies,
		validator: NewRequestValidator(policies, repo.Approval),
		detector:  NewConflictDetector(policies),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// --- Implementation ---

func (s *approvalService) Submit(ctx context.Context, tenantIDStr string, in SubmitRequestDTO) (SubmitResponse, error) {
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return SubmitResponse{}, apperr.Validation("invalid temple id")
	}
	tenant, err := s.repo.User.GetTenant(ctx, tenantID)
	if err != nil {
		return SubmitResponse{}, err
	}
	if !tenant.Active {
		return SubmitResponse{}, apperr.NotFound("temple not found")
	}

	req, err := s.validator.Validate(ctx, tenantID, in)
	if err != nil {
		return SubmitResponse{}, err
	}

	var performedBy *string
	if in.SubmittedBy != "" {
		performedBy = &in.SubmittedBy
	}

	err = s.repo.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		req.SubmittedAt = s.now()
		if createErr := s.repo.Approval.Create(txCtx, req); createErr != nil {
			return fmt.Errorf("failed to create approval request: %w", createErr)
		}
		return s.appendLog(txCtx, req, model.ActionSubmitted, performedBy, "", nil)
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	s.logger.Info("approval request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("resource_kind", req.ResourceKind),
	)
	s.publish(req, model.ActionSubmitted)
	return SubmitResponse{ID: req.ID.String(), Status: req.Status}, nil
}

func (s *approvalService) Approve(ctx context.Context, actor authz.Actor, id string, notes string) (ApprovalRequestResponse, error) {
	if err := s.authorize(actor, authz.PermApprovalsApprove, authz.LevelEdit, "approve"); err != nil {
		return ApprovalRequestResponse{}, err
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalRequestResponse{}, apperr.Validation("invalid approval request id")
	}

	var approved *model.ApprovableRequest
	err = s.repo.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, findErr := s.repo.Approval.FindByID(txCtx, requestID)
		if findErr != nil {
			return findErr
		}
		if tenantErr := s.authorizeTenant(actor, current.TenantID); tenantErr != nil {
			return tenantErr
		}
		if !current.IsPending() {
			return apperr.State(fmt.Sprintf("approval request is already %s", current.Status))
		}

		policy, ok := s.policies.Lookup(current.ResourceKind)
		if !ok {
			return fmt.Errorf("no policy for resource kind %q", current.ResourceKind)
		}
		// Competing approvals of one schedule queue here until the holder commits.
		if policy.Conflict.Exclusive() {
			if lockErr := s.repo.Locker.LockSlot(txCtx, current.TenantID.String(), current.ResourceKind); lockErr != nil {
				return fmt.Errorf("failed to lock slot: %w", lockErr)
			}
		}

		locked, findErr := s.repo.Approval.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return findErr
		}
		if !locked.IsPending() {
			return apperr.State(fmt.Sprintf("approval request is already %s", locked.Status))
		}

		conflict, conflictErr := s.detector.HasConflict(txCtx, locked.TenantID, locked.ResourceKind, windowOf(locked), locked.ID)
		if conflictErr != nil {
			return fmt.Errorf("failed to check slot conflicts: %w", conflictErr)
		}
		if conflict {
			return apperr.Conflict("slot already booked")
		}

		now := s.now()
		approver := actor.ID()
		locked.Status = model.StatusApproved
		locked.ApprovedBy = &approver
		locked.ApprovedAt = &now
		locked.AdminNotes = optional(notes)

		if saveErr := s.repo.Approval.Update(txCtx, locked); saveErr != nil {
			return fmt.Errorf("failed to update approval request: %w", saveErr)
		}
		if logErr := s.appendLog(txCtx, locked, model.ActionApproved, &approver, notes, strPtr(model.StatusPending)); logErr != nil {
			return logErr
		}
		approved = locked
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.ErrConflict) {
			s.logger.Info("approval blocked by slot conflict",
				zap.String("request_id", id),
				zap.String("actor", actor.ID()),
			)
		}
		return ApprovalRequestResponse{}, err
	}

	s.logger.Info("approval request approved",
		zap.String("request_id", approved.ID.String()),
		zap.String("actor", actor.ID()),
	)
	s.publish(approved, model.ActionApproved)
	return toApprovalResponse(*approved), nil
}

func (s *approvalService) Reject(ctx context.Context, actor authz.Actor, id string, reason, notes string) (ApprovalRequestResponse, error) {
	if err := s.authorize(actor, authz.PermApprovalsApprove, authz.LevelEdit, "reject"); err != nil {
		return ApprovalRequestResponse{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ApprovalRequestResponse{}, apperr.Validation("rejection reason is required")
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalRequestResponse{}, apperr.Validation("invalid approval request id")
	}

	var rejected *model.ApprovableRequest
	err = s.repo.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.repo.Approval.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return findErr
		}
		if tenantErr := s.authorizeTenant(actor, req.TenantID); tenantErr != nil {
			return tenantErr
		}
		if !req.IsPending() {
			return apperr.State(fmt.Sprintf("approval request is already %s", req.Status))
		}

		now := s.now()
		approver := actor.ID()
		req.Status = model.StatusRejected
		req.ApprovedBy = &approver
		req.ApprovedAt = &now
		req.RejectionReason = &reason
		req.AdminNotes = optional(notes)

		if saveErr := s.repo.Approval.Update(txCtx, req); saveErr != nil {
			return fmt.Errorf("failed to update approval request: %w", saveErr)
		}
		logNotes := reason
		if n := strings.TrimSpace(notes); n != "" {
			logNotes = reason + " | " + n
		}
		if logErr := s.appendLog(txCtx, req, model.ActionRejected, &approver, logNotes, strPtr(model.StatusPending)); logErr != nil {
			return logErr
		}
		rejected = req
		return nil
	})
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	s.logger.Info("approval request rejected",
		zap.String("request_id", rejected.ID.String()),
		zap.String("actor", actor.ID()),
	)
	s.publish(rejected, model.ActionRejected)
	return toApprovalResponse(*rejected), nil
}

// Cancel lets the original submitter withdraw a pending request. A requester
// that does not match submittedBy sees the same error as an unknown id.
func (s *approvalService) Cancel(ctx context.Context, tenantIDStr, id, requester, reason string) (ApprovalRequestResponse, error) {
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return ApprovalRequestResponse{}, apperr.Validation("invalid temple id")
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalRequestResponse{}, apperr.Validation("invalid approval request id")
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return ApprovalRequestResponse{}, apperr.Validation("contact is required")
	}

	var cancelled *model.ApprovableRequest
	err = s.repo.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.repo.Approval.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return findErr
		}
		if req.TenantID != tenantID || req.SubmittedBy != requester {
			return apperr.NotFound("approval request not found")
		}
		if !req.IsPending() {
			return apperr.State(fmt.Sprintf("approval request is already %s", req.Status))
		}

		req.Status = model.StatusCancelled
		if saveErr := s.repo.Approval.Update(txCtx, req); saveErr != nil {
			return fmt.Errorf("failed to update approval request: %w", saveErr)
		}
		if logErr := s.appendLog(txCtx, req, model.ActionCancelled, &requester, strings.TrimSpace(reason), strPtr(model.StatusPending)); logErr != nil {
			return logErr
		}
		cancelled = req
		return nil
	})
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	s.logger.Info("approval request cancelled by submitter", zap.String("request_id", cancelled.ID.String()))
	s.publish(cancelled, model.ActionCancelled)
	return toApprovalResponse(*cancelled), nil
}

// BulkAction applies approve or reject to each id independently. Failures are
// collected per id and never abort the batch.
func (s *approvalService) BulkAction(ctx context.Context, actor authz.Actor, in BulkActionDTO) (BulkActionResult, error) {
	switch in.Action {
	case BulkApprove, BulkReject:
	default:
		return BulkActionResult{}, apperr.Validation("action must be approve or reject")
	}
	if err := s.authorize(actor, authz.PermApprovalsApprove, authz.LevelEdit, "bulk "+in.Action); err != nil {
		return BulkActionResult{}, err
	}
	if in.Action == BulkReject && strings.TrimSpace(in.Reason) == "" {
		return BulkActionResult{}, apperr.Validation("rejection reason is required")
	}

	result := BulkActionResult{Errors: []string{}}
	for _, id := range in.RequestIDs {
		var err error
		if in.Action == BulkApprove {
			_, err = s.Approve(ctx, actor, id, in.Notes)
		} else {
			_, err = s.Reject(ctx, actor, id, in.Reason, in.Notes)
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, err.Error()))
			continue
		}
		if in.Action == BulkApprove {
			result.ApprovedCount++
		} else {
			result.RejectedCount++
		}
	}

	s.logger.Info("bulk approval action finished",
		zap.String("action", in.Action),
		zap.Int("requested", len(in.RequestIDs)),
		zap.Int("approved", result.ApprovedCount),
		zap.Int("rejected", result.RejectedCount),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// --- Helpers ---

func (s *approvalService) authorize(actor authz.Actor, permissionID string, level authz.AccessLevel, op string) error {
	if err := authz.Authorize(actor, permissionID, level); err != nil {
		s.logger.Warn("permission denied",
			zap.String("operation", op),
			zap.String("actor", actor.ID()),
			zap.String("permission", permissionID),
			zap.String("required_level", level.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *approvalService) authorizeTenant(actor authz.Actor, tenantID uuid.UUID) error {
	if err := authz.AuthorizeTenant(actor, tenantID); err != nil {
		s.logger.Warn("cross-tenant access denied",
			zap.String("actor", actor.ID()),
			zap.String("actor_tenant", actor.TenantID.String()),
			zap.String("request_tenant", tenantID.String()),
		)
		return err
	}
	return nil
}

func (s *approvalService) appendLog(ctx context.Context, req *model.ApprovableRequest, action string, performedBy *string, notes string, oldStatus *string) error {
	entry := model.ApprovalLog{
		ID:          uuid.New(),
		TenantID:    req.TenantID,
		RequestID:   req.ID,
		Action:      action,
		PerformedBy: performedBy,
		PerformedAt: s.now(),
		Notes:       notes,
		OldStatus:   oldStatus,
		NewStatus:   strPtr(req.Status),
	}
	if err := s.repo.Audit.Append(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write approval log: %w", err)
	}
	return nil
}

func (s *approvalService) publish(req *model.ApprovableRequest, action string) {
	s.notifier.Publish(ApprovalEvent{
		Type:      "approval." + action,
		RequestID: req.ID,
		TenantID:  req.TenantID,
		Status:    req.Status,
		At:        s.now(),
	})
}

func toApprovalResponse(a model.ApprovableRequest) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:               a.ID.String(),
		TenantID:         a.TenantID.String(),
		ResourceKind:     a.ResourceKind,
		RequesterName:    a.RequesterName,
		RequesterContact: a.RequesterContact,
		FromDate:         a.FromDate.Format(dateLayout),
		ToDate:           a.ToDate.Format(dateLayout),
		Time:             a.SlotTime,
		Title:            a.Title,
		ReferenceNo:      a.ReferenceNo,
		Quantity:         a.Quantity,
		Status:           a.Status,
		SubmittedBy:      a.SubmittedBy,
		SubmittedAt:      a.SubmittedAt.Format(time.RFC3339),
		ApprovedBy:       a.ApprovedBy,
		RejectionReason:  a.RejectionReason,
		AdminNotes:       a.AdminNotes,
	}
	if len(a.Details) > 0 {
		resp.Details = json.RawMessage(a.Details)
	}
	if a.Amount != nil {
		s := a.Amount.StringFixed(2)
		resp.Amount = &s
	}
	if a.ApprovedAt != nil {
		s := a.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &s
	}
	return resp
}

func strPtr(s string) *string { return &s }

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
