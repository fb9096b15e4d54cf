package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// NewTransactionManager runs transactions at READ COMMITTED. Serialization of
// competing approvals comes from the slot advisory lock, not the isolation level.
func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	}, t.opts)
	return mapError(err)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

// SlotLocker serializes writers competing for the same resource schedule.
type SlotLocker interface {
	// LockSlot blocks until the caller holds the schedule lock for
	// (tenant, resourceKind). The lock is released when the transaction ends,
	// so it must be called inside RunInTx.
	LockSlot(ctx context.Context, tenantID, resourceKind string) error
}

type advisoryLocker struct {
	db *gorm.DB
}

func NewSlotLocker(db *gorm.DB) SlotLocker {
	return &advisoryLocker{db: db}
}

func (l *advisoryLocker) LockSlot(ctx context.Context, tenantID, resourceKind string) error {
	key := "slot:" + tenantID + ":" + resourceKind
	return mapError(GetDB(ctx, l.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error)
}
