package repository

import "gorm.io/gorm"

// Repository groups every storage adapter the services need.
type Repository struct {
	Approval ApprovalRepository
	Audit    AuditRepository
	Grant    GrantRepository
	User     UserRepository
	Locker   SlotLocker
	Tx       TransactionManager
}

// NewRepository builds the gorm-backed adapters. tx is usually a retrying
// decorator around NewTransactionManager(db).
func NewRepository(db *gorm.DB, tx TransactionManager) *Repository {
	return &Repository{
		Approval: NewApprovalRepository(db),
		Audit:    NewAuditRepository(db),
		Grant:    NewGrantRepository(db),
		User:     NewUserRepository(db),
		Locker:   NewSlotLocker(db),
		Tx:       tx,
	}
}
