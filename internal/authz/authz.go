// Package authz decides whether an actor may act at a required access tier.
// Every function here is pure: no storage, no logging.
package authz

import (
	"fmt"

	"templeadmin/internal/model"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
)

// AccessLevel is an ordered permission tier: none < view < edit < full.
type AccessLevel int

const (
	LevelNone AccessLevel = iota
	LevelView
	LevelEdit
	LevelFull
)

// Permission ids in the catalog
const (
	PermApprovalsRead     = "approvals.read"
	PermApprovalsApprove  = "approvals.approve"
	PermPermissionsManage = "permissions.manage"
)

var levelNames = map[AccessLevel]string{
	LevelNone: "none",
	LevelView: "view",
	LevelEdit: "edit",
	LevelFull: "full",
}

func (l AccessLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a stored level name. Unknown names are an error.
func ParseLevel(s string) (AccessLevel, error) {
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown access level %q", s)
}

// Actor is an authenticated user together with its grants.
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
	Grants   map[string]AccessLevel
}

// ID is the identifier recorded as performedBy on log entries.
func (a Actor) ID() string {
	return a.UserID.String()
}

func (a Actor) IsSuperadmin() bool {
	return a.Role == model.RoleSuperadmin
}

// Authorize allows superadmins unconditionally; everyone else needs a grant for
// permissionID at or above required.
func Authorize(actor Actor, permissionID string, required AccessLevel) error {
	if actor.IsSuperadmin() {
		return nil
	}
	granted, ok := actor.Grants[permissionID]
	if !ok {
		return apperr.Permission(fmt.Sprintf("permission not granted: %s", permissionID))
	}
	if granted < required {
		return apperr.Permission(fmt.Sprintf("insufficient permission level: %s requires %s, have %s", permissionID, required, granted))
	}
	return nil
}

// AuthorizeTenant denies any cross-tenant access, superadmins included.
func AuthorizeTenant(actor Actor, tenantID uuid.UUID) error {
	if actor.TenantID != tenantID {
		return apperr.Permission("cross-tenant access denied")
	}
	return nil
}
