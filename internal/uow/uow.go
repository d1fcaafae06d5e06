package uow

import (
	"context"

	"github.com/kirinyoku/tix-gate/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work over the ledger store.
type UoW struct {
	store repository.LedgerStore
}

func NewUoW(store repository.LedgerStore) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside one ledger transaction. After a successful commit it
// executes the registered after-commit hooks in order. Hooks registered by
// an attempt that the store retried are discarded with that attempt.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.LedgerTx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
