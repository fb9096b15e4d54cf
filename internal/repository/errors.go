package repository

import (
	"database/sql/driver"
	"errors"

	"templeadmin/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the adapters care about
const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeStringTooLong        = "22001"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeCannotConnectNow     = "57P03"
	codeTooManyConnections   = "53300"
)

const (
	referenceIndexName = "idx_requests_tenant_reference"
	slotExclusionName  = "excl_requests_approved_slot"
)

// mapError converts driver and gorm errors to apperr kinds. Errors that are
// already classified pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			if pgErr.ConstraintName == referenceIndexName {
				return apperr.Duplicate("reference number already exists")
			}
			return apperr.Conflict("record already exists")
		case codeExclusionViolation:
			return apperr.Conflict("slot already booked")
		case codeStringTooLong:
			return apperr.Validation("value too long for field")
		}
	}

	if IsTransient(err) {
		return apperr.Transient("storage temporarily unavailable", err)
	}
	return err
}

// IsTransient reports failures that can succeed when the whole transaction is retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrTransient) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable,
			codeQueryCanceled, codeCannotConnectNow, codeTooManyConnections:
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
