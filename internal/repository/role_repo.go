package repository

import (
	"context"

	"templeadmin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantRepository stores the permission catalog and per-user access levels.
type GrantRepository interface {
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	UpsertPermission(ctx context.Context, perm *model.Permission) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PermissionGrant, error)
	Upsert(ctx context.Context, grant *model.PermissionGrant) error
	Delete(ctx context.Context, userID uuid.UUID, permissionID string) error
}

type grantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) GrantRepository {
	return &grantRepository{db: db}
}

func (r *grantRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("\"group\" asc, id asc").Find(&perms).Error; err != nil {
		return nil, mapError(err)
	}
	return perms, nil
}

func (r *grantRepository) UpsertPermission(ctx context.Context, perm *model.Permission) error {
	return mapError(GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "group"}),
	}).Create(perm).Error)
}

func (r *grantRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PermissionGrant, error) {
	var grants []model.PermissionGrant
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("permission_id asc").Find(&grants).Error; err != nil {
		return nil, mapError(err)
	}
	return grants, nil
}

func (r *grantRepository) Upsert(ctx context.Context, grant *model.PermissionGrant) error {
	return mapError(GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_level", "granted_by", "updated_at"}),
	}).Create(grant).Error)
}

func (r *grantRepository) Delete(ctx context.Context, userID uuid.UUID, permissionID string) error {
	return mapError(GetDB(ctx, r.db).
		Where("user_id = ? AND permission_id = ?", userID, permissionID).
		Delete(&model.PermissionGrant{}).Error)
}
