package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed keys together with the result of the
// first successful invocation, so retried requests can be answered without
// re-applying their effects.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key whose original invocation
// is still in flight (no stored result yet).
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CheckAndInsert reserves a key before processing. A duplicate reservation
// returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Lookup returns the stored result for key. ok is false when the key is
// unknown or has no completed result yet.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (result []byte, ok bool, err error) {
	if s == nil {
		return nil, false, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return nil, false, errors.New("idempotency key required")
	}
	err = s.pool.QueryRow(ctx, `SELECT result FROM idempotency_keys WHERE key=$1 AND result IS NOT NULL`, key).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// SaveResult writes a key with its result inside the caller's transaction so
// the marker commits atomically with the business mutation.
func SaveResult(ctx context.Context, tx pgx.Tx, key, module string, result []byte) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, result, created_at) VALUES ($1, $2, $3, $4)`, key, module, result, time.Now())
	if err != nil && IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Complete attaches the result to a previously reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result=$2 WHERE key=$1`, key, result)
	return err
}

// Cleanup removes entries older than retention. Retention must cover
// realistic client retry windows.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
