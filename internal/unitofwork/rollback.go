package unitofwork

import (
	"errors"
	"fmt"
	"strings"
)

// RollbackPolicy decides, given a task failure, whether the unit of work rolls
// back (true) or commits anyway (false).
type RollbackPolicy func(err error) bool

// RollbackOnAnyError rolls back on every failure. It is the default policy.
func RollbackOnAnyError(err error) bool {
	return err != nil
}

// NeverRollback commits regardless of the failure.
func NeverRollback(error) bool {
	return false
}

// RollbackOnPanic rolls back only when the task panicked. Returned errors are
// treated as expected outcomes and committed.
func RollbackOnPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// RollbackOn rolls back when the failure matches any of targets.
func RollbackOn(targets ...error) RollbackPolicy {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// RollbackUnless rolls back on every failure except those matching targets.
func RollbackUnless(targets ...error) RollbackPolicy {
	match := RollbackOn(targets...)
	return func(err error) bool {
		return err != nil && !match(err)
	}
}

// ParseRollbackPolicy maps a configuration name to a policy.
// Accepted names are "any", "never" and "panic".
func ParseRollbackPolicy(name string) (RollbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return RollbackOnAnyError, nil
	case "never":
		return NeverRollback, nil
	case "panic":
		return RollbackOnPanic, nil
	default:
		return nil, fmt.Errorf("unknown rollback policy %q", name)
	}
}
