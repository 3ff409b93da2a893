package unitofwork

// ExecutionResult is the outcome of the task run under a unit of work: either
// a value or the failure the task returned.
type ExecutionResult struct {
	value any
	err   error
}

// NewExecutionResult creates a result. A non-nil err makes it exceptional.
func NewExecutionResult(value any, err error) *ExecutionResult {
	return &ExecutionResult{value: value, err: err}
}

// Value returns the task's return value. It is nil for exceptional results.
func (r *ExecutionResult) Value() any {
	return r.value
}

// Err returns the task failure, if any.
func (r *ExecutionResult) Err() error {
	return r.err
}

// IsExceptional reports whether the task failed.
func (r *ExecutionResult) IsExceptional() bool {
	return r.err != nil
}

// ResultValue returns the result value converted to T.
func ResultValue[T any](r *ExecutionResult) (T, bool) {
	var zero T
	if r == nil || r.err != nil {
		return zero, false
	}
	v, ok := r.value.(T)
	return v, ok
}
