// Package unitofwork provides the transactional context in which a single
// message is processed.
//
// A UnitOfWork moves through a fixed sequence of phases:
//
//	NOT_STARTED -> STARTED -> PREPARE_COMMIT -> COMMIT -> AFTER_COMMIT -> CLEANUP -> CLOSED
//	                               \-> ROLLBACK -> CLEANUP -> CLOSED
//
// Collaborators register callbacks for these phases (OnPrepareCommit, OnCommit,
// AfterCommit, OnRollback, OnCleanup). Callbacks for COMMIT-side phases run in
// registration order; ROLLBACK, AFTER_COMMIT and CLEANUP callbacks run in
// reverse, so the most recently acquired resource is released first.
//
// # Flows
//
// Units started from the same context.Context form a stack, the flow. The
// unit on top is the active one and is returned by Current. A unit started
// while another is active becomes its child; only the active unit may commit
// or roll back, which forces children to close before their parent.
//
//	u := unitofwork.New(ctx, msg)
//	err := u.Execute(func(ctx context.Context) error {
//	    tx := startTx(ctx)
//	    u.OnCommit(func(*unitofwork.UnitOfWork) error { return tx.Commit() })
//	    u.OnRollback(func(*unitofwork.UnitOfWork, error) error { return tx.Rollback() })
//	    return handle(ctx, msg)
//	})
//
// Goroutines processing messages independently derive their context with
// WithFlow so that each has its own stack.
package unitofwork
