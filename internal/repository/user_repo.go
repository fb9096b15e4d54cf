package repository

import (
	"context"

	"templeadmin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository reads users and tenants; both are master data owned elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	return &user, nil
}

func (r *userRepository) GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := GetDB(ctx, r.db).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, notFoundAs(err, "temple not found")
	}
	return &tenant, nil
}
