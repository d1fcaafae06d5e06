package postgresrepo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// IsRetryable reports whether the whole transaction may be replayed.
func IsRetryable(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	default:
		return false
	}
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translateDBErr maps driver errors onto the repository sentinels. Anything
// it does not recognise is returned unchanged.
func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	code := sqlState(err)
	switch {
	case code == codeUniqueViolation:
		return repository.ErrConflict
	case strings.HasPrefix(code, "08"),
		code == codeTooManyConnections,
		code == codeAdminShutdown,
		code == codeCannotConnectNow:
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}

	return err
}
