package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"templeadmin/internal/authz"
	"templeadmin/internal/model"
	"templeadmin/internal/repository"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type PermissionResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

type GrantResponse struct {
	PermissionID string  `json:"permission_id"`
	AccessLevel  string  `json:"access_level"`
	GrantedBy    *string `json:"granted_by"`
	UpdatedAt    string  `json:"updated_at"`
}

type SetGrantRequest struct {
	PermissionID string `json:"permission_id" binding:"required"`
	AccessLevel  string `json:"access_level" binding:"required,oneof=none view edit full"`
}

// --- Cache ---

// GrantCache holds resolved grants per user. Implementations must be safe for
// concurrent use.
type GrantCache interface {
	Get(ctx context.Context, userID uuid.UUID) (map[string]authz.AccessLevel, bool)
	Set(ctx context.Context, userID uuid.UUID, grants map[string]authz.AccessLevel)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type cachedGrants struct {
	grants    map[string]authz.AccessLevel
	expiresAt time.Time
}

// MemoryGrantCache is the in-process GrantCache used when Redis is not configured.
type MemoryGrantCache struct {
	ttl     time.Duration
	entries sync.Map // uuid.UUID -> cachedGrants
	now     func() time.Time
}

func NewMemoryGrantCache(ttl time.Duration) *MemoryGrantCache {
	return &MemoryGrantCache{ttl: ttl, now: time.Now}
}

func (c *MemoryGrantCache) Get(_ context.Context, userID uuid.UUID) (map[string]authz.AccessLevel, bool) {
	v, ok := c.entries.Load(userID)
	if !ok {
		return nil, false
	}
	entry := v.(cachedGrants)
	if c.now().After(entry.expiresAt) {
		c.entries.Delete(userID)
		return nil, false
	}
	return entry.grants, true
}

func (c *MemoryGrantCache) Set(_ context.Context, userID uuid.UUID, grants map[string]authz.AccessLevel) {
	c.entries.Store(userID, cachedGrants{grants: grants, expiresAt: c.now().Add(c.ttl)})
}

func (c *MemoryGrantCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.entries.Delete(userID)
}

// --- Interface ---

type GrantService interface {
	ListPermissions(ctx context.Context, actor authz.Actor) ([]PermissionResponse, error)
	ListGrants(ctx context.Context, actor authz.Actor, userID string) ([]GrantResponse, error)
	SetGrant(ctx context.Context, actor authz.Actor, userID string, req SetGrantRequest) ([]GrantResponse, error)
	// ResolveActor loads a user's role and grants, served from cache when fresh.
	ResolveActor(ctx context.Context, userID uuid.UUID) (authz.Actor, error)
	SeedPermissions(ctx context.Context) error
}

type grantService struct {
	repo   *repository.Repository
	cache  GrantCache
	logger *zap.Logger
}

func NewGrantService(repo *repository.Repository, cache GrantCache, logger *zap.Logger) GrantService {
	return &grantService{repo: repo, cache: cache, logger: logger}
}

// DefaultPermissions is the seeded catalog.
var DefaultPermissions = []model.Permission{
	{ID: authz.PermApprovalsRead, Name: "View approval requests", Group: "approvals"},
	{ID: authz.PermApprovalsApprove, Name: "Approve or reject requests", Group: "approvals"},
	{ID: authz.PermPermissionsManage, Name: "Manage user permissions", Group: "permissions"},
}

// --- Implementation ---

func (s *grantService) ListPermissions(ctx context.Context, actor authz.Actor) ([]PermissionResponse, error) {
	if err := authz.Authorize(actor, authz.PermPermissionsManage, authz.LevelView); err != nil {
		return nil, err
	}
	perms, err := s.repo.Grant.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, PermissionResponse{ID: p.ID, Name: p.Name, Group: p.Group})
	}
	return res, nil
}

func (s *grantService) ListGrants(ctx context.Context, actor authz.Actor, userIDStr string) ([]GrantResponse, error) {
	if err := authz.Authorize(actor, authz.PermPermissionsManage, authz.LevelView); err != nil {
		return nil, err
	}
	target, err := s.targetUser(ctx, actor, userIDStr)
	if err != nil {
		return nil, err
	}
	return s.grantsOf(ctx, target.ID)
}

func (s *grantService) SetGrant(ctx context.Context, actor authz.Actor, userIDStr string, req SetGrantRequest) ([]GrantResponse, error) {
	if err := authz.Authorize(actor, authz.PermPermissionsManage, authz.LevelFull); err != nil {
		s.logger.Warn("permission denied",
			zap.String("operation", "set grant"),
			zap.String("actor", actor.ID()),
			zap.Error(err),
		)
		return nil, err
	}
	level, err := authz.ParseLevel(req.AccessLevel)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if !knownPermission(req.PermissionID) {
		return nil, apperr.Validation(fmt.Sprintf("unknown permission: %s", req.PermissionID))
	}
	target, err := s.targetUser(ctx, actor, userIDStr)
	if err != nil {
		return nil, err
	}

	err = s.repo.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if level == authz.LevelNone {
			return s.repo.Grant.Delete(txCtx, target.ID, req.PermissionID)
		}
		grantedBy := actor.UserID
		return s.repo.Grant.Upsert(txCtx, &model.PermissionGrant{
			UserID:       target.ID,
			PermissionID: req.PermissionID,
			AccessLevel:  level.String(),
			GrantedBy:    &grantedBy,
			UpdatedAt:    time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update grant: %w", err)
	}
	s.cache.Invalidate(ctx, target.ID)

	s.logger.Info("permission grant updated",
		zap.String("actor", actor.ID()),
		zap.String("user_id", target.ID.String()),
		zap.String("permission", req.PermissionID),
		zap.String("level", level.String()),
	)
	return s.grantsOf(ctx, target.ID)
}

func (s *grantService) ResolveActor(ctx context.Context, userID uuid.UUID) (authz.Actor, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		return authz.Actor{}, err
	}
	actor := authz.Actor{UserID: user.ID, TenantID: user.TenantID, Role: user.Role}

	if grants, ok := s.cache.Get(ctx, userID); ok {
		actor.Grants = grants
		return actor, nil
	}

	rows, err := s.repo.Grant.ListByUser(ctx, userID)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("failed to load grants: %w", err)
	}
	grants := make(map[string]authz.AccessLevel, len(rows))
	for _, g := range rows {
		level, parseErr := authz.ParseLevel(g.AccessLevel)
		if parseErr != nil {
			s.logger.Warn("ignoring grant with unknown level",
				zap.String("user_id", userID.String()),
				zap.String("permission", g.PermissionID),
				zap.String("level", g.AccessLevel),
			)
			continue
		}
		grants[g.PermissionID] = level
	}
	s.cache.Set(ctx, userID, grants)
	actor.Grants = grants
	return actor, nil
}

func (s *grantService) SeedPermissions(ctx context.Context) error {
	for i := range DefaultPermissions {
		p := DefaultPermissions[i]
		if err := s.repo.Grant.UpsertPermission(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", p.ID, err)
		}
	}
	return nil
}

// --- Helpers ---

// targetUser loads the user whose grants are managed; it must share the actor's temple.
func (s *grantService) targetUser(ctx context.Context, actor authz.Actor, userIDStr string) (*model.User, error) {
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, apperr.Validation("invalid user id")
	}
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := authz.AuthorizeTenant(actor, user.TenantID); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *grantService) grantsOf(ctx context.Context, userID uuid.UUID) ([]GrantResponse, error) {
	rows, err := s.repo.Grant.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	res := make([]GrantResponse, 0, len(rows))
	for _, g := range rows {
		var by *string
		if g.GrantedBy != nil {
			s := g.GrantedBy.String()
			by = &s
		}
		res = append(res, GrantResponse{
			PermissionID: g.PermissionID,
			AccessLevel:  g.AccessLevel,
			GrantedBy:    by,
			UpdatedAt:    g.UpdatedAt.Format(time.RFC3339),
		})
	}
	return res, nil
}

func knownPermission(id string) bool {
	for _, p := range DefaultPermissions {
		if p.ID == id {
			return true
		}
	}
	return false
}
