package app

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/jsamuelsen/msgflow/internal/app/staging"
	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// Stats counts delivered events by name. Counting is staged in the unit of
// work handling the event, so a delivery that rolls back leaves no trace.
type Stats struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewStats creates an empty projection.
func NewStats() *Stats {
	return &Stats{counts: make(map[string]int64)}
}

// Handle implements ports.MessageHandler. It must run inside a unit of work.
func (s *Stats) Handle(ctx context.Context, event messaging.Message) (any, error) {
	q, err := staging.For(ctx)
	if err != nil {
		return nil, err
	}
	return nil, q.Add(&countAction{stats: s, name: event.Name})
}

// Snapshot returns a copy of the counts.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.counts)
}

// Count returns the count for name.
func (s *Stats) Count(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counts[name]
}

func (s *Stats) add(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[name] += delta
	if s.counts[name] == 0 {
		delete(s.counts, name)
	}
}

type countAction struct {
	stats *Stats
	name  string
}

func (a *countAction) Execute(context.Context) error {
	a.stats.add(a.name, 1)
	return nil
}

func (a *countAction) Rollback(context.Context) error {
	a.stats.add(a.name, -1)
	return nil
}

func (a *countAction) Description() string {
	return fmt.Sprintf("count %s", a.name)
}
