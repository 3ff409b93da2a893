package unitofwork

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"slices"
)

// Callback reacts to a unit of work entering a phase.
type Callback func(u *UnitOfWork) error

// RollbackCallback reacts to a rollback. cause is nil for a rollback requested
// without a failure.
type RollbackCallback func(u *UnitOfWork, cause error) error

// PhaseListener observes every phase transition. Listeners cannot fail and
// must not register callbacks; telemetry uses them.
type PhaseListener func(u *UnitOfWork, from, to Phase)

// handler is one registered callback. Exactly one of fn and onRollback is set.
type handler struct {
	fn         Callback
	onRollback RollbackCallback
}

func (h handler) invoke(u *UnitOfWork, cause error) error {
	if h.onRollback != nil {
		return h.onRollback(u, cause)
	}
	return h.fn(u)
}

// callbackRegistry keeps one ordered list per phase.
type callbackRegistry struct {
	byPhase [len(phaseTraits)][]handler
}

func (r *callbackRegistry) add(phase Phase, h handler) {
	r.byPhase[phase] = append(r.byPhase[phase], h)
}

// since returns the handlers registered for phase from index from onwards.
func (r *callbackRegistry) since(phase Phase, from int) []handler {
	list := r.byPhase[phase]
	if from >= len(list) {
		return nil
	}
	return slices.Clone(list[from:])
}

func (r *callbackRegistry) reset() {
	r.byPhase = [len(phaseTraits)][]handler{}
}

// The registration methods below run fn immediately when its phase has
// already been dispatched. They panic with an *IllegalStateError when the
// unit will never reach the phase: a commit phase after a rollback, or
// ROLLBACK after a commit.

// OnPrepareCommit registers fn for the PREPARE_COMMIT phase.
func (u *UnitOfWork) OnPrepareCommit(fn Callback) {
	u.register(PhasePrepareCommit, handler{fn: fn})
}

// OnCommit registers fn for the COMMIT phase. A failing commit callback turns
// the commit into a rollback.
func (u *UnitOfWork) OnCommit(fn Callback) {
	u.register(PhaseCommit, handler{fn: fn})
}

// AfterCommit registers fn for the AFTER_COMMIT phase.
func (u *UnitOfWork) AfterCommit(fn Callback) {
	u.register(PhaseAfterCommit, handler{fn: fn})
}

// OnRollback registers fn for the ROLLBACK phase.
func (u *UnitOfWork) OnRollback(fn RollbackCallback) {
	u.register(PhaseRollback, handler{onRollback: fn})
}

// OnCleanup registers fn for the CLEANUP phase, which runs on both paths.
func (u *UnitOfWork) OnCleanup(fn Callback) {
	u.register(PhaseCleanup, handler{fn: fn})
}

// register appends h for target, or runs it right away when target has
// already been dispatched.
func (u *UnitOfWork) register(target Phase, h handler) {
	switch {
	case u.unreachable(target):
		panic(illegalState("register "+target.String()+" callback", u.phase, "phase is never reached"))

	case !u.phase.IsAfter(target):
		u.callbacks.add(target, h)

	default:
		if err := h.invoke(u, u.cause); err != nil {
			u.logger.Warn("late callback failed",
				slog.String("phase", target.String()),
				slog.Any("error", err),
			)
		}
	}
}

// unreachable reports whether target is skipped by the path this unit took.
func (u *UnitOfWork) unreachable(target Phase) bool {
	if target.onCommitPath() {
		return u.rollingBack
	}
	if target == PhaseRollback {
		return !u.rollingBack && u.phase.IsAfter(PhaseRollback)
	}
	return false
}

// dispatch runs the callbacks for phase until none are left, including those
// registered while dispatching. With bestEffort every callback runs and the
// failures are joined; otherwise the first failure stops the dispatch.
func (u *UnitOfWork) dispatch(phase Phase, cause error, bestEffort bool) error {
	var errs []error

	for done := 0; ; {
		pending := u.callbacks.since(phase, done)
		if len(pending) == 0 {
			break
		}
		done += len(pending)

		if phase.IsReverseCallbackOrder() {
			slices.Reverse(pending)
		}

		for _, h := range pending {
			err := u.guard(h, cause)
			if err == nil {
				continue
			}

			err = &CallbackError{Phase: phase, Err: err}
			if !bestEffort {
				return err
			}

			u.logger.Warn("callback failed",
				slog.String("phase", phase.String()),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// guard invokes h, turning a panic into a *PanicError. The first panic is
// kept on the unit and resumed once the unit is closed.
func (u *UnitOfWork) guard(h handler, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p := &PanicError{Value: r, Stack: debug.Stack()}
			if u.panicked == nil {
				u.panicked = p
			}
			err = p
		}
	}()
	return h.invoke(u, cause)
}
