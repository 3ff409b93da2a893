// Package eventbus provides an in-memory publisher whose deliveries follow
// the unit of work of the publishing message.
//
// Events published while a unit of work is active are held by that unit.
// When it commits they pass to its parent if the parent still accepts work,
// so they are delivered only once the commit root has committed. A rollback
// anywhere on the way drops them. Each subscriber handles each event in its
// own unit of work, nested under the publishing unit when one is active.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
	"github.com/jsamuelsen/msgflow/internal/ports"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

const pendingResourceKey = "eventbus.pending"

type subscription struct {
	id      uint64
	name    string
	handler ports.MessageHandler
}

// Bus is an in-memory ports.EventPublisher.
type Bus struct {
	factory *unitofwork.Factory

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

var _ ports.EventPublisher = (*Bus)(nil)

// New creates a bus whose subscriber units of work are created by factory.
// A nil factory uses default options.
func New(factory *unitofwork.Factory) *Bus {
	if factory == nil {
		factory = unitofwork.NewFactory()
	}
	return &Bus{factory: factory}
}

// Subscribe registers h for events named name, or for every event when name
// is Wildcard. The returned function removes the subscription.
func (b *Bus) Subscribe(name string, h ports.MessageHandler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Publish delivers events to their subscribers. Inside an active unit of
// work the events are enriched with the unit's correlation data and held
// until it commits.
func (b *Bus) Publish(ctx context.Context, events ...messaging.Message) error {
	if len(events) == 0 {
		return nil
	}

	u, err := unitofwork.Current(ctx)
	if err != nil {
		b.deliver(ctx, events)
		return nil
	}

	correlation := u.CorrelationData()
	enriched := make([]messaging.Message, len(events))
	for i, e := range events {
		enriched[i] = e.AndMetaData(correlation)
	}

	switch {
	case u.IsRolledBack():
		u.Logger().DebugContext(ctx, "dropping events published during rollback",
			slog.Int("count", len(enriched)),
		)
	case u.Phase().IsBefore(unitofwork.PhaseAfterCommit):
		p := b.pending(u)
		p.events = append(p.events, enriched...)
	default:
		b.deliver(ctx, enriched)
	}

	return nil
}

type pending struct {
	events []messaging.Message
}

// pending returns the events held by u, registering their hand-over on the
// first call.
func (b *Bus) pending(u *unitofwork.UnitOfWork) *pending {
	return u.GetOrComputeResource(pendingResourceKey, func(string) any {
		p := &pending{}
		u.AfterCommit(func(u *unitofwork.UnitOfWork) error {
			b.settle(u, p.events)
			return nil
		})
		return p
	}).(*pending)
}

// settle hands the events of committed unit u to its parent when the
// parent's commit still decides their fate, and delivers them otherwise.
func (b *Bus) settle(u *unitofwork.UnitOfWork, events []messaging.Message) {
	if parent, ok := u.Parent(); ok && parent.CanEnlist() {
		held := b.pending(parent)
		held.events = append(held.events, events...)
		return
	}
	b.deliver(u.Context(), events)
}

func (b *Bus) matching(name string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []subscription
	for _, s := range b.subs {
		if s.name == name || s.name == Wildcard {
			out = append(out, s)
		}
	}
	return out
}

// deliver hands every event to its subscribers in publication order.
// Subscriber failures are logged and do not reach the publisher.
func (b *Bus) deliver(ctx context.Context, events []messaging.Message) {
	logger := logging.FromContext(ctx)

	for _, event := range events {
		for _, s := range b.matching(event.Name) {
			if err := b.handle(ctx, s, event); err != nil {
				logger.WarnContext(ctx, "event subscriber failed",
					slog.String("event_id", event.ID),
					slog.String("event_name", event.Name),
					slog.String("subscription", s.name),
					slog.Any("error", err),
				)
			}
		}
	}
}

func (b *Bus) handle(ctx context.Context, s subscription, event messaging.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %w", &unitofwork.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	u := b.factory.Create(ctx, event)
	return u.Execute(func(ctx context.Context) error {
		_, err := s.handler.Handle(ctx, event)
		return err
	})
}
