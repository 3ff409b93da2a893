package relay

import (
	"sync"
	"time"
)

// State is the state of a Breaker.
type State int

const (
	// StateClosed lets every delivery through.
	StateClosed State = iota

	// StateOpen rejects deliveries until the open timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of trial deliveries through.
	StateHalfOpen
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker. Zero values fall back to one failure,
// a 30s open timeout and one trial delivery.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenLimit is both the number of concurrent trials allowed and the
	// number of consecutive trial successes that close the circuit.
	HalfOpenLimit int
}

// Breaker guards the webhook against repeated deliveries while it is failing.
//
//	closed    -> open       after MaxFailures consecutive failures
//	open      -> half-open  once Timeout has elapsed since the last failure
//	half-open -> closed     after HalfOpenLimit consecutive successes
//	half-open -> open       on any failure
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     State
	failures  int
	successes int
	trials    int
	openedAt  time.Time

	onChange func(from, to State)
	now      func() time.Time
}

// NewBreaker creates a closed breaker. onChange, when not nil, is called
// after every state change, outside the breaker's lock.
func NewBreaker(cfg BreakerConfig, onChange func(from, to State)) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenLimit < 1 {
		cfg.HalfOpenLimit = 1
	}

	return &Breaker{
		cfg:      cfg,
		onChange: onChange,
		now:      time.Now,
	}
}

// Allow reserves a delivery. It returns ErrCircuitOpen when the delivery must
// not be attempted. Every nil return must be followed by exactly one call to
// Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from, to, err := b.allow()
	b.mu.Unlock()

	b.notify(from, to)
	return err
}

func (b *Breaker) allow() (State, State, error) {
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Timeout {
			return b.state, b.state, ErrCircuitOpen
		}
		from := b.transition(StateHalfOpen)
		b.trials = 1
		return from, b.state, nil

	case StateHalfOpen:
		if b.trials >= b.cfg.HalfOpenLimit {
			return b.state, b.state, ErrCircuitOpen
		}
		b.trials++
	}

	return b.state, b.state, nil
}

// Success records a delivery the webhook accepted or answered.
func (b *Breaker) Success() {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.trials--
		b.successes++
		if b.successes >= b.cfg.HalfOpenLimit {
			b.transition(StateClosed)
		}
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// Failure records a delivery that could not reach the webhook.
func (b *Breaker) Failure() {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trials--
		b.transition(StateOpen)
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the lock held. It returns the previous state.
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0

	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.trials = 0
	case StateClosed:
		b.trials = 0
	}

	return from
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
