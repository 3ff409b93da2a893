package app

import (
	"maps"
	"slices"
	"sync"

	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/ports"
)

// Dispatcher routes messages to handlers by message name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]ports.MessageHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]ports.MessageHandler)}
}

// Register adds the handler for name.
// Returns domain.ErrConflict if name already has a handler.
func (d *Dispatcher) Register(name string, h ports.MessageHandler) error {
	if name == "" {
		return domain.NewValidationError("name", "must not be empty")
	}
	if h == nil {
		return domain.NewValidationError("handler", "must not be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.handlers[name]; ok {
		return domain.NewConflictError("handler", name+" already registered")
	}

	d.handlers[name] = h
	return nil
}

// Handler returns the handler for name.
// Returns domain.ErrNoHandler if none is registered.
func (d *Dispatcher) Handler(name string) (ports.MessageHandler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.handlers[name]
	if !ok {
		return nil, domain.NewNoHandlerError(name)
	}
	return h, nil
}

// Names returns the registered message names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Sorted(maps.Keys(d.handlers))
}
