package postgres

import (
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"marketplace-settlement/internal/domain/repository"
)

// SQLSTATE codes the repositories translate
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

func mapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, repository.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", msg, repository.ErrTransactionConflict, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", msg, repository.ErrDuplicate, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// nullJSON stores empty payloads as NULL
func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
