package unitofwork

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
)

// UnitOfWork tracks the processing of a single message through the phases of
// its lifecycle. It is a synchronous state machine: all methods must be called
// from the flow of execution that owns it.
type UnitOfWork struct {
	ctx     context.Context
	flow    *flow
	message messaging.Message
	logger  *slog.Logger

	phase       Phase
	parent      *UnitOfWork
	completing  bool
	rollingBack bool
	cause       error
	panicked    *PanicError

	resources map[string]any
	providers []messaging.CorrelationDataProvider
	result    *ExecutionResult
	callbacks callbackRegistry

	listeners []PhaseListener
	policy    RollbackPolicy
	maxDepth  int
}

// New creates a unit of work for msg. The unit joins the flow carried by ctx;
// when ctx carries none, a new flow is started for it. The unit is not
// started: its parent is decided by Start.
func New(ctx context.Context, msg messaging.Message, opts ...Option) *UnitOfWork {
	if ctx == nil {
		ctx = context.Background()
	}

	f := flowFrom(ctx)
	if f == nil {
		ctx = WithFlow(ctx)
		f = flowFrom(ctx)
	}

	u := &UnitOfWork{
		flow:      f,
		message:   msg,
		resources: make(map[string]any),
		policy:    RollbackOnAnyError,
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.logger != nil {
		ctx = logging.WithContext(ctx, u.logger)
	}
	u.ctx = logging.WithMessage(ctx, msg.ID, msg.Name)
	u.logger = logging.FromContext(u.ctx)

	return u
}

// StartAndGet creates a unit of work for msg and starts it.
func StartAndGet(ctx context.Context, msg messaging.Message, opts ...Option) (*UnitOfWork, error) {
	u := New(ctx, msg, opts...)
	if err := u.Start(); err != nil {
		return nil, err
	}
	return u, nil
}

// Context returns the context handed to tasks. It carries the unit's flow and
// a logger enriched with the message id and name.
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

// Logger returns the unit's logger.
func (u *UnitOfWork) Logger() *slog.Logger {
	return u.logger
}

// Message returns the message processed by this unit.
func (u *UnitOfWork) Message() messaging.Message {
	return u.message
}

// Phase returns the current phase.
func (u *UnitOfWork) Phase() Phase {
	return u.phase
}

// IsActive reports whether the unit has started and not yet reached cleanup.
func (u *UnitOfWork) IsActive() bool {
	return u.phase.IsStarted()
}

// IsRolledBack reports whether the unit took, or is taking, the rollback path.
func (u *UnitOfWork) IsRolledBack() bool {
	return u.rollingBack
}

// RollbackCause returns the failure that caused the rollback, if any.
func (u *UnitOfWork) RollbackCause() error {
	return u.cause
}

// Parent returns the unit that was active when this one started.
func (u *UnitOfWork) Parent() (*UnitOfWork, bool) {
	return u.parent, u.parent != nil
}

// IsRoot reports whether the unit has no parent.
func (u *UnitOfWork) IsRoot() bool {
	return u.parent == nil
}

// Root returns the outermost ancestor, or u itself for a root unit.
func (u *UnitOfWork) Root() *UnitOfWork {
	root := u
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// CanEnlist reports whether work done now is still settled by u's own
// commit: u is active, not rolling back, and has not entered COMMIT.
func (u *UnitOfWork) CanEnlist() bool {
	return u.IsActive() && !u.rollingBack && u.phase.IsBefore(PhaseCommit)
}

// CommitRoot returns the outermost unit, starting from u, whose ancestors up
// to u all accept work. Work held on it commits or rolls back together with u
// and every unit in between. A unit nested under one that is already
// committing is its own commit root.
func (u *UnitOfWork) CommitRoot() *UnitOfWork {
	root := u
	for p := u.parent; p != nil && p.CanEnlist(); p = p.parent {
		root = p
	}
	return root
}

// Depth returns the number of ancestors.
func (u *UnitOfWork) Depth() int {
	depth := 0
	for p := u.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// ExecutionResult returns the task outcome recorded by Execute.
func (u *UnitOfWork) ExecutionResult() (*ExecutionResult, bool) {
	return u.result, u.result != nil
}

// Start makes the unit the active one of its flow. A unit already active in
// the flow becomes its parent.
func (u *UnitOfWork) Start() error {
	if u.phase != PhaseNotStarted {
		return illegalState("start", u.phase, "already started")
	}

	parent := u.flow.top()
	if parent != nil && u.maxDepth > 0 && parent.Depth()+1 > u.maxDepth {
		return illegalState("start", u.phase, "maximum nesting depth exceeded")
	}

	u.parent = parent
	u.flow.push(u)
	u.changePhase(PhaseStarted)

	return nil
}

// Commit drives the unit through PREPARE_COMMIT, COMMIT, AFTER_COMMIT and
// CLEANUP to CLOSED. A failing PREPARE_COMMIT or COMMIT callback rolls the
// unit back instead and its error is returned. A panicking callback fails
// the same way and the panic resumes once the unit is closed.
func (u *UnitOfWork) Commit() error {
	if err := u.checkActive("commit"); err != nil {
		return err
	}
	defer u.resume()
	return u.commit()
}

// Rollback drives the unit through ROLLBACK and CLEANUP to CLOSED. cause may
// be nil. The returned error only reports failing rollback or cleanup
// callbacks.
func (u *UnitOfWork) Rollback(cause error) error {
	if err := u.checkActive("rollback"); err != nil {
		return err
	}
	defer u.resume()
	return u.rollback(cause)
}

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	policy RollbackPolicy
}

// RollbackWhen overrides the unit's rollback policy for one execution.
func RollbackWhen(policy RollbackPolicy) ExecuteOption {
	return func(o *executeOptions) {
		o.policy = policy
	}
}

// Execute runs task under the unit, starting it first when needed, and then
// commits or rolls back. A task failure is always returned, after cleanup,
// even when the rollback policy chose to commit. A panicking task rolls the
// unit back and the panic resumes once the unit is closed.
func (u *UnitOfWork) Execute(task func(ctx context.Context) error, opts ...ExecuteOption) error {
	return u.run(func(ctx context.Context) (any, error) {
		return nil, task(ctx)
	}, opts)
}

// ExecuteWithResult is Execute for tasks returning a value. The value is
// recorded in the unit's execution result.
func ExecuteWithResult[R any](u *UnitOfWork, task func(ctx context.Context) (R, error), opts ...ExecuteOption) (R, error) {
	var out R
	err := u.run(func(ctx context.Context) (any, error) {
		r, err := task(ctx)
		out = r
		return r, err
	}, opts)
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

func (u *UnitOfWork) run(task func(ctx context.Context) (any, error), opts []ExecuteOption) error {
	cfg := executeOptions{policy: u.policy}
	for _, opt := range opts {
		opt(&cfg)
	}

	if u.phase == PhaseNotStarted {
		if err := u.Start(); err != nil {
			return err
		}
	} else if err := u.checkActive("execute"); err != nil {
		return err
	}

	defer u.resume()

	value, panicked, taskErr := u.invoke(task)
	if panicked != nil && u.panicked == nil {
		u.panicked = panicked
	}

	if dangling := u.flow.above(u); len(dangling) > 0 {
		taskErr = joinAfter(taskErr, u.abandon(dangling))
	}

	if u.completing {
		// The task committed or rolled back the unit itself.
		return joinAfter(taskErr, illegalState("execute", u.phase, "completed by task"))
	}

	if taskErr == nil {
		u.result = NewExecutionResult(value, nil)
		return u.commit()
	}

	u.result = NewExecutionResult(nil, taskErr)

	var completionErr error
	if cfg.policy(taskErr) {
		u.rollingBack = true
		u.completing = true
		u.changePhase(PhasePrepareCommit)
		completionErr = u.rollback(taskErr)
	} else {
		u.logger.Debug("committing despite task failure", slog.Any("error", taskErr))
		completionErr = u.commit()
	}

	return joinAfter(taskErr, completionErr)
}

// resume re-raises the first panic recovered from the task or a callback,
// once the unit is closed.
func (u *UnitOfWork) resume() {
	if p := u.panicked; p != nil && u.phase == PhaseClosed {
		u.panicked = nil
		panic(p.Value)
	}
}

func (u *UnitOfWork) invoke(task func(ctx context.Context) (any, error)) (value any, panicked *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = &PanicError{Value: r, Stack: debug.Stack()}
			err = panicked
		}
	}()

	value, err = task(u.ctx)
	return value, nil, err
}

// abandon rolls back nested units the task left open, innermost first.
func (u *UnitOfWork) abandon(dangling []*UnitOfWork) error {
	cause := illegalState("execute", u.phase, "nested unit of work left open by task")
	for i := len(dangling) - 1; i >= 0; i-- {
		child := dangling[i]
		if child.completing {
			continue
		}
		child.logger.Warn("rolling back abandoned unit of work")
		_ = child.rollback(cause)
	}
	return cause
}

func (u *UnitOfWork) checkActive(op string) error {
	switch {
	case !u.phase.IsStarted():
		return illegalState(op, u.phase, "not started")
	case u.completing:
		return illegalState(op, u.phase, "already completing")
	case u.flow.top() != u:
		return illegalState(op, u.phase, "not the active unit of work")
	}
	return nil
}

func (u *UnitOfWork) commit() error {
	u.completing = true

	u.changePhase(PhasePrepareCommit)
	if err := u.dispatch(PhasePrepareCommit, nil, false); err != nil {
		return joinAfter(err, u.rollback(err))
	}

	u.changePhase(PhaseCommit)
	if err := u.dispatch(PhaseCommit, nil, false); err != nil {
		return joinAfter(err, u.rollback(err))
	}

	u.changePhase(PhaseAfterCommit)
	afterErr := u.dispatch(PhaseAfterCommit, nil, true)

	return joinAfter(afterErr, u.cleanup())
}

func (u *UnitOfWork) rollback(cause error) error {
	u.completing = true
	u.rollingBack = true
	u.cause = cause

	u.changePhase(PhaseRollback)
	rollbackErr := u.dispatch(PhaseRollback, cause, true)

	return joinAfter(rollbackErr, u.cleanup())
}

func (u *UnitOfWork) cleanup() error {
	u.changePhase(PhaseCleanup)
	err := u.dispatch(PhaseCleanup, nil, true)

	u.changePhase(PhaseClosed)
	u.flow.remove(u)
	clear(u.resources)
	u.callbacks.reset()

	return err
}

func (u *UnitOfWork) changePhase(to Phase) {
	from := u.phase
	u.phase = to

	u.logger.Debug("unit of work phase changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)

	for _, l := range u.listeners {
		l(u, from, to)
	}
}
