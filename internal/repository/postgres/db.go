package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-gate/internal/repository"
)

const (
	maxTxAttempts = 5
	txRetryStep   = 10 * time.Millisecond
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.LedgerStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a serializable read-write transaction, retrying the whole
// body on serialization failures and deadlocks with a short linear backoff.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	const op = "postgresrepo.Store.RunTx"

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.attempt(ctx, fn)
		if err == nil || !IsRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(time.Duration(attempt) * txRetryStep):
		}
	}
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin: %w", translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, newLedgerTx(s, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) Orders() *OrderRepo           { return &OrderRepo{pool: s.pool} }
func (s *Store) Tickets() *TicketRepo         { return &TicketRepo{pool: s.pool} }
func (s *Store) Validations() *ValidationRepo { return &ValidationRepo{pool: s.pool} }
