package repository

import (
	"context"
	"errors"
	"fmt"

	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres の SQLSTATE
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// translateError はドライバのエラーを repository の sentinel で包む。
// 元のエラーも errors.As で取り出せるように残す。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{repo.ErrNotFound, repo.ErrDuplicate, repo.ErrSerialization, repo.ErrTxTimeout} {
		if errors.Is(err, known) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", repo.ErrDuplicate, err)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", repo.ErrSerialization, err)
		case pgLockNotAvailable, pgQueryCanceled:
			return fmt.Errorf("%w: %w", repo.ErrTxTimeout, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", repo.ErrTxTimeout, err)
	}
	return err
}
