package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSerialization indicates the transaction lost a serialization or deadlock
// race and was rolled back by Postgres.
var ErrSerialization = errors.New("platform/db: serialization failure")

// IsSerializationFailure reports whether err is a retryable transaction
// failure (SQLSTATE 40001 serialization, 40P01 deadlock).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return errors.Is(err, ErrSerialization)
}

// WithTx executes fn within a RepeatableRead transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTxRetry runs WithTx and retries exactly once against fresh state when
// the first attempt loses a serialization race. Callers map a second failure
// to their conflict error.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	err := WithTx(ctx, pool, fn)
	if err == nil || !IsSerializationFailure(err) {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return WithTx(ctx, pool, fn)
}
