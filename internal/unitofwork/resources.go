package unitofwork

import (
	"fmt"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// Resources returns the mutable store scoped to this unit of work. It is
// emptied when the unit closes.
func (u *UnitOfWork) Resources() map[string]any {
	return u.resources
}

// GetResource returns the value stored under key.
func (u *UnitOfWork) GetResource(key string) (any, bool) {
	v, ok := u.resources[key]
	return v, ok
}

// GetOrComputeResource returns the value under key, computing and storing it
// with fn when absent. fn runs at most once per key.
func (u *UnitOfWork) GetOrComputeResource(key string, fn func(key string) any) any {
	if v, ok := u.resources[key]; ok {
		return v
	}
	v := fn(key)
	u.resources[key] = v
	return v
}

// Resource returns the value under key converted to T.
func Resource[T any](u *UnitOfWork, key string) (T, bool) {
	v, ok := u.resources[key].(T)
	return v, ok
}

// ComputeResource is GetOrComputeResource for fallible computations. A value
// is only stored when fn succeeds, so a later call retries.
func ComputeResource[T any](u *UnitOfWork, key string, fn func(key string) (T, error)) (T, error) {
	if v, ok := u.resources[key]; ok {
		typed, ok := v.(T)
		if !ok {
			return typed, fmt.Errorf("resource %q holds %T", key, v)
		}
		return typed, nil
	}

	v, err := fn(key)
	if err != nil {
		var zero T
		return zero, err
	}
	u.resources[key] = v
	return v, nil
}

// RegisterCorrelationDataProvider adds p to the providers consulted by
// CorrelationData. Later providers win on key collision.
func (u *UnitOfWork) RegisterCorrelationDataProvider(p messaging.CorrelationDataProvider) {
	u.providers = append(u.providers, p)
}

// CorrelationData folds all registered providers over this unit's message.
// It is recomputed on every call, so it reflects providers registered since.
func (u *UnitOfWork) CorrelationData() messaging.MetaData {
	out := messaging.MetaData{}
	for _, p := range u.providers {
		out = out.Merge(p.CorrelationDataFor(u.message))
	}
	return out
}
