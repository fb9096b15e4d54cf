package database

import (
	"fmt"

	"templeadmin/internal/config"
	"templeadmin/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// constraintDDL holds the storage-level invariants AutoMigrate cannot express.
// Each statement is idempotent.
var constraintDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_tenant_reference
		ON approvable_requests (tenant_id, reference_no)
		WHERE reference_no IS NOT NULL`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'excl_requests_approved_slot') THEN
			ALTER TABLE approvable_requests ADD CONSTRAINT excl_requests_approved_slot
			EXCLUDE USING gist (
				tenant_id WITH =,
				resource_kind WITH =,
				slot_key WITH =,
				daterange(from_date, to_date, '[]') WITH &&
			) WHERE (status = 'approved' AND exclusive);
		END IF;
	END $$`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_requests_window') THEN
			ALTER TABLE approvable_requests ADD CONSTRAINT chk_requests_window CHECK (from_date <= to_date);
		END IF;
	END $$`,
}

// NewConnection opens the PostgreSQL pool, migrates the approval tables and
// installs the uniqueness and exclusion constraints.
func NewConnection(cfg *config.DatabaseConfig, logLevel string, logger *zap.Logger) (*gorm.DB, error) {
	gormLevel := gormlogger.Warn
	if logLevel == "debug" {
		gormLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: newGormLogger(logger, gormLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	err = db.AutoMigrate(
		&model.Tenant{},
		&model.User{},
		&model.Permission{},
		&model.PermissionGrant{},
		&model.ApprovableRequest{},
		&model.ApprovalLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	for _, stmt := range constraintDDL {
		if err := db.Exec(stmt).Error; err != nil {
			// Without btree_gist the advisory lock still serializes approvals.
			logger.Warn("failed to install storage constraint", zap.Error(err))
		}
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dbname", cfg.Name),
	)
	return db, nil
}
