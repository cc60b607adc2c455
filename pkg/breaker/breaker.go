// Package breaker implements a three-state circuit breaker. In the closed
// state failures accumulate; at the threshold the circuit opens and rejects
// calls outright. After a cooldown the circuit goes half-open and admits a
// single probe at a time; enough consecutive probe successes close it again,
// while any probe failure reopens it and restarts the cooldown.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the underlying operation.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// State is the breaker's position in its lifecycle.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a single probe at a time.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default settings.
const (
	// DefaultFailureThreshold opens the circuit after this many
	// consecutive failures in the closed state.
	DefaultFailureThreshold = 5

	// DefaultSuccessThreshold closes the circuit after this many
	// consecutive probe successes in the half-open state.
	DefaultSuccessThreshold = 2

	// DefaultOpenDuration is the cooldown before probing resumes.
	DefaultOpenDuration = 30 * time.Second
)

// Settings tunes a breaker.
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
}

// DefaultSettings returns the standard tuning.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		OpenDuration:     DefaultOpenDuration,
	}
}

// normalize clamps nonsensical settings to usable minimums.
func (s Settings) normalize() Settings {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 1
	}

	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 1
	}

	if s.OpenDuration <= 0 {
		s.OpenDuration = DefaultOpenDuration
	}

	return s
}

// Breaker is a mutex-guarded circuit breaker safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	settings  Settings
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates a closed breaker with the given settings.
func New(settings Settings) *Breaker {
	return NewWithClock(settings, time.Now)
}

// NewWithClock creates a breaker that reads time from now. Tests use a
// manual clock to step through the cooldown without sleeping.
func NewWithClock(settings Settings, now func() time.Time) *Breaker {
	return &Breaker{
		settings: settings.normalize(),
		state:    StateClosed,
		now:      now,
	}
}

// Execute runs op under the breaker's admission rules. Rejected calls
// return ErrCircuitOpen without invoking op; otherwise op's error is
// returned as-is after the outcome is recorded.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if admitErr := b.admit(); admitErr != nil {
		return admitErr
	}

	opErr := op(ctx)
	b.record(opErr == nil)

	return opErr
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	return b.state
}

// admit decides whether a call may proceed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}

		b.probing = true

		return nil
	default:
		return nil
	}
}

// record applies an outcome to the state machine.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0

			return
		}

		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.probing = false

		if !success {
			b.open()

			return
		}

		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.close()
		}
	case StateOpen:
		// A call admitted before the circuit opened is finishing late;
		// its outcome no longer changes the state.
	}
}

// open trips the circuit and restarts the cooldown clock.
// Callers must hold b.mu.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probing = false
}

// close resets the circuit to its passing state.
// Callers must hold b.mu.
func (b *Breaker) close() {
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probing = false
}

// maybeHalfOpen moves an open circuit to half-open once the cooldown has
// elapsed. Callers must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state != StateOpen {
		return
	}

	if b.now().Sub(b.openedAt) >= b.settings.OpenDuration {
		b.state = StateHalfOpen
		b.successes = 0
		b.probing = false
	}
}
