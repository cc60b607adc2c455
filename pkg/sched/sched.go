// Package sched provides a small in-process scheduler for one-shot and
// recurring callbacks. Registrations share one id namespace; callback
// failures are logged and contained so a bad callback cannot kill the
// scheduler or, for recurring entries, its future invocations.
package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyScheduled is returned when an id is registered twice.
var ErrAlreadyScheduled = errors.New("sched: id already scheduled")

// ErrInvalidInterval is returned when a recurring interval is not positive.
var ErrInvalidInterval = errors.New("sched: interval must be positive")

// Callback is invoked when a registration fires.
type Callback func(ctx context.Context) error

// entryKind discriminates one-shot from recurring registrations.
type entryKind int

const (
	kindOnce entryKind = iota
	kindRecurring
)

// entry is one live registration.
type entry struct {
	kind  entryKind
	timer *time.Timer
	stop  chan struct{}
}

// Scheduler fires registered callbacks at their due times.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New creates an empty scheduler. A nil logger discards output.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// ScheduleOnce registers fn to fire once at fireAt under ctx. A fireAt in
// the past fires immediately. The registration is removed after firing,
// whether fn succeeds or fails.
func (s *Scheduler) ScheduleOnce(ctx context.Context, id string, fireAt time.Time, fn Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return ErrAlreadyScheduled
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	e := &entry{kind: kindOnce}
	e.timer = time.AfterFunc(delay, func() {
		s.remove(id, e)
		s.invoke(ctx, id, fn)
	})

	s.entries[id] = e

	return nil
}

// ScheduleRecurring registers fn to fire every interval under ctx until the
// registration is cancelled. Callback errors do not stop future invocations.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, id string, interval time.Duration, fn Callback) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return ErrAlreadyScheduled
	}

	e := &entry{kind: kindRecurring, stop: make(chan struct{})}
	s.entries[id] = e

	go s.runRecurring(ctx, id, interval, fn, e.stop)

	return nil
}

// runRecurring drives one recurring registration until stopped.
func (s *Scheduler) runRecurring(ctx context.Context, id string, interval time.Duration, fn Callback, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, id, fn)
		}
	}
}

// invoke runs one callback under panic isolation.
func (s *Scheduler) invoke(ctx context.Context, id string, fn Callback) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "scheduled callback panicked",
				slog.String("schedule_id", id),
				slog.Any("panic", r),
			)
		}
	}()

	if callErr := fn(ctx); callErr != nil {
		s.logger.WarnContext(ctx, "scheduled callback failed",
			slog.String("schedule_id", id),
			slog.String("error", callErr.Error()),
		)
	}
}

// Cancel removes the registration for id. It returns true only when a live
// registration was removed; a second Cancel for the same id returns false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return false
	}

	s.stopEntry(e)
	delete(s.entries, id)

	return true
}

// IsScheduled reports whether id has a live registration.
func (s *Scheduler) IsScheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.entries[id]

	return exists
}

// CancelAll removes every registration. Safe to call on shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		s.stopEntry(e)
		delete(s.entries, id)
	}
}

// stopEntry halts an entry's timer or ticker goroutine.
// Callers must hold s.mu.
func (s *Scheduler) stopEntry(e *entry) {
	switch e.kind {
	case kindOnce:
		e.timer.Stop()
	case kindRecurring:
		close(e.stop)
	}
}

// remove deletes id if it still maps to e. A one-shot firing and a
// concurrent Cancel race here; the map check keeps the removal idempotent.
func (s *Scheduler) remove(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.entries[id]; exists && current == e {
		delete(s.entries, id)
	}
}
