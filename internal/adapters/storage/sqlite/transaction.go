package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

const (
	txResourceKey        = "sqlite.tx"
	savepointResourceKey = "sqlite.savepoint"
)

// boundTx is a transaction whose outcome follows a unit of work.
type boundTx struct {
	tx         *sql.Tx
	ctx        context.Context
	savepoints int
	done       bool
}

func (b *boundTx) commit(*unitofwork.UnitOfWork) error {
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox transaction: %w", err)
	}
	return nil
}

func (b *boundTx) rollback(*unitofwork.UnitOfWork, error) error {
	b.done = true
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("roll back outbox transaction: %w", err)
	}
	return nil
}

// release closes a transaction left open by a unit that failed before its
// commit or rollback callbacks ran.
func (b *boundTx) release(u *unitofwork.UnitOfWork) error {
	if b.done {
		return nil
	}
	u.Logger().Warn("closing outbox transaction left open")
	return b.rollback(u, nil)
}

func (b *boundTx) savepoint(u *unitofwork.UnitOfWork) (string, error) {
	b.savepoints++
	name := fmt.Sprintf("uow_%d", b.savepoints)

	if _, err := b.tx.ExecContext(b.ctx, "SAVEPOINT "+name); err != nil {
		return "", fmt.Errorf("create savepoint: %w", err)
	}

	u.OnCommit(func(*unitofwork.UnitOfWork) error {
		if _, err := b.tx.ExecContext(b.ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	})
	u.OnRollback(func(*unitofwork.UnitOfWork, error) error {
		if b.done {
			return nil
		}
		if _, err := b.tx.ExecContext(b.ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return fmt.Errorf("roll back savepoint: %w", err)
		}
		if _, err := b.tx.ExecContext(b.ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	})

	return name, nil
}

// ErrTransactionBusy is returned for a write that would need a second
// transaction while an enclosing unit of work still holds its own open.
// SQLite allows one writer, so the second would block until the busy
// timeout and fail.
var ErrTransactionBusy = fmt.Errorf("outbox transaction of an enclosing unit of work is still open: %w",
	unitofwork.ErrIllegalState)

// openTx returns the first transaction still open on u or its ancestors.
func openTx(u *unitofwork.UnitOfWork) (*boundTx, bool) {
	for c, ok := u, true; ok; c, ok = c.Parent() {
		if b, found := unitofwork.Resource[*boundTx](c, txResourceKey); found && !b.done {
			return b, true
		}
	}
	return nil, false
}

// unitTx returns the transaction bound to the commit root of the unit of
// work active in ctx, beginning it on first use. ok is false when no unit can
// take the write, in which case the caller commits on its own. Writes that
// would open a second transaction beside an enclosing one fail with
// ErrTransactionBusy.
func (s *Store) unitTx(ctx context.Context) (tx *sql.Tx, ok bool, err error) {
	u, err := unitofwork.Current(ctx)
	if err != nil {
		return nil, false, nil
	}
	if !u.CanEnlist() {
		// A committed child still writes through a parent that accepts work.
		p, hasParent := u.Parent()
		if !hasParent || u.IsRolledBack() || !p.CanEnlist() {
			if _, busy := openTx(u); busy {
				return nil, false, ErrTransactionBusy
			}
			return nil, false, nil
		}
		u = p
	}

	a := u.CommitRoot()
	if p, ok := a.Parent(); ok {
		if _, busy := openTx(p); busy {
			return nil, false, ErrTransactionBusy
		}
	}
	b, err := unitofwork.ComputeResource(a, txResourceKey, func(string) (*boundTx, error) {
		txCtx := context.WithoutCancel(a.Context())
		tx, err := s.db.BeginTx(txCtx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin outbox transaction: %w", err)
		}

		b := &boundTx{tx: tx, ctx: txCtx}
		a.OnCommit(b.commit)
		a.OnRollback(b.rollback)
		a.OnCleanup(b.release)
		return b, nil
	})
	if err != nil {
		return nil, false, err
	}

	var chain []*unitofwork.UnitOfWork
	for c := u; c != a; c, _ = c.Parent() {
		chain = append(chain, c)
	}
	slices.Reverse(chain)

	for _, c := range chain {
		if _, err := unitofwork.ComputeResource(c, savepointResourceKey, func(string) (string, error) {
			return b.savepoint(c)
		}); err != nil {
			return nil, false, err
		}
	}

	return b.tx, true, nil
}

// existingUnitTx returns the nearest open transaction of the unit of work
// active in ctx or its ancestors without beginning one.
func (s *Store) existingUnitTx(ctx context.Context) (*sql.Tx, bool) {
	u, err := unitofwork.Current(ctx)
	if err != nil {
		return nil, false
	}
	b, ok := openTx(u)
	if !ok {
		return nil, false
	}
	return b.tx, true
}
