package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"templeadmin/internal/authz"
	"templeadmin/internal/model"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newGrantFixture(t *testing.T) (GrantService, *memStore, authz.Actor, model.User) {
	t.Helper()
	store := newMemStore()
	tenantID := uuid.New()
	manager := model.User{ID: uuid.New(), TenantID: tenantID, Username: "tri-su", Role: model.RoleAdmin}
	staff := model.User{ID: uuid.New(), TenantID: tenantID, Username: "staff", Role: model.RoleMember}
	store.users[manager.ID] = manager
	store.users[staff.ID] = staff

	svc := NewGrantService(store.repository(), NewMemoryGrantCache(time.Minute), zap.NewNop())
	if err := svc.SeedPermissions(context.Background()); err != nil {
		t.Fatalf("SeedPermissions() error = %v", err)
	}
	actor := authz.Actor{
		UserID:   manager.ID,
		TenantID: tenantID,
		Role:     model.RoleAdmin,
		Grants:   map[string]authz.AccessLevel{authz.PermPermissionsManage: authz.LevelFull},
	}
	return svc, store, actor, staff
}

func TestSetGrant_UpsertAndRevoke(t *testing.T) {
	svc, _, actor, staff := newGrantFixture(t)
	ctx := context.Background()

	// prime the cache so SetGrant has something to invalidate
	before, err := svc.ResolveActor(ctx, staff.ID)
	if err != nil {
		t.Fatalf("ResolveActor() error = %v", err)
	}
	if len(before.Grants) != 0 {
		t.Fatalf("grants before = %v", before.Grants)
	}

	grants, err := svc.SetGrant(ctx, actor, staff.ID.String(), SetGrantRequest{PermissionID: authz.PermApprovalsApprove, AccessLevel: "edit"})
	if err != nil {
		t.Fatalf("SetGrant() error = %v", err)
	}
	if len(grants) != 1 || grants[0].AccessLevel != "edit" || grants[0].GrantedBy == nil || *grants[0].GrantedBy != actor.ID() {
		t.Errorf("grants = %+v", grants)
	}

	resolved, err := svc.ResolveActor(ctx, staff.ID)
	if err != nil {
		t.Fatalf("ResolveActor() error = %v", err)
	}
	if resolved.Grants[authz.PermApprovalsApprove] != authz.LevelEdit {
		t.Errorf("resolved grants = %v, cache not invalidated", resolved.Grants)
	}
	if resolved.TenantID != staff.TenantID || resolved.Role != model.RoleMember {
		t.Errorf("resolved actor = %+v", resolved)
	}

	grants, err = svc.SetGrant(ctx, actor, staff.ID.String(), SetGrantRequest{PermissionID: authz.PermApprovalsApprove, AccessLevel: "none"})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("grants after revoke = %+v", grants)
	}
}

func TestSetGrant_Rejections(t *testing.T) {
	svc, store, actor, staff := newGrantFixture(t)
	ctx := context.Background()

	editor := actor
	editor.Grants = map[string]authz.AccessLevel{authz.PermPermissionsManage: authz.LevelEdit}
	if _, err := svc.SetGrant(ctx, editor, staff.ID.String(), SetGrantRequest{PermissionID: authz.PermApprovalsRead, AccessLevel: "view"}); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("edit-level manager: got %v", err)
	}
	if _, err := svc.SetGrant(ctx, actor, staff.ID.String(), SetGrantRequest{PermissionID: "finance.read", AccessLevel: "view"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown permission: got %v", err)
	}
	if _, err := svc.SetGrant(ctx, actor, staff.ID.String(), SetGrantRequest{PermissionID: authz.PermApprovalsRead, AccessLevel: "owner"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown level: got %v", err)
	}

	foreign := model.User{ID: uuid.New(), TenantID: uuid.New(), Role: model.RoleMember}
	store.users[foreign.ID] = foreign
	if _, err := svc.SetGrant(ctx, actor, foreign.ID.String(), SetGrantRequest{PermissionID: authz.PermApprovalsRead, AccessLevel: "view"}); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("cross-tenant grant: got %v", err)
	}
	if _, err := svc.ListGrants(ctx, actor, uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestListPermissions_Seeded(t *testing.T) {
	svc, _, actor, _ := newGrantFixture(t)
	perms, err := svc.ListPermissions(context.Background(), actor)
	if err != nil {
		t.Fatalf("ListPermissions() error = %v", err)
	}
	if len(perms) != len(DefaultPermissions) {
		t.Errorf("permissions = %d, want %d", len(perms), len(DefaultPermissions))
	}
}

func TestMemoryGrantCache_Expiry(t *testing.T) {
	cache := NewMemoryGrantCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()
	id := uuid.New()

	cache.Set(ctx, id, map[string]authz.AccessLevel{authz.PermApprovalsRead: authz.LevelView})
	if _, ok := cache.Get(ctx, id); !ok {
		t.Fatal("expected cache hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, id); ok {
		t.Error("expected expired entry to miss")
	}

	cache.Set(ctx, id, nil)
	cache.Invalidate(ctx, id)
	if _, ok := cache.Get(ctx, id); ok {
		t.Error("expected invalidated entry to miss")
	}
}
