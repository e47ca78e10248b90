package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hanko-field/storefront/internal/repositories"
)

// SQLSTATE codes with repository meaning.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
	codeCannotConnectNow     = "57P03"
)

// mapError classifies driver errors into repository errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *repositories.Error
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.NewError(op, repositories.KindNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return repositories.NewError(op, repositories.KindUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return repositories.NewError(op, repositories.KindConflict, err)
		case codeQueryCanceled, codeCannotConnectNow:
			return repositories.NewError(op, repositories.KindUnavailable, err)
		}
	}
	if pgconn.Timeout(err) {
		return repositories.NewError(op, repositories.KindUnavailable, err)
	}
	return repositories.NewError(op, repositories.KindUnknown, err)
}
