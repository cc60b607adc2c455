// Package bus provides the typed command and event dispatchers that join
// the pipeline stages. Commands route to exactly one handler and return its
// result synchronously; events fan out to any number of subscribers whose
// failures are isolated from one another.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrNoHandler is returned when a command has no registered handler.
var ErrNoHandler = errors.New("bus: no handler registered")

// ErrDuplicateHandler is returned when a command name is registered twice.
var ErrDuplicateHandler = errors.New("bus: handler already registered")

// Command is implemented by every command routed through the CommandBus.
type Command interface {
	CommandName() string
}

// Event is implemented by every event published on the EventBus.
type Event interface {
	EventName() string
}

// CommandHandler executes one command and returns its declared result.
type CommandHandler func(ctx context.Context, cmd Command) (any, error)

// EventHandler reacts to one event. A returned error is logged by the bus
// and never propagated to the publisher.
type EventHandler func(ctx context.Context, evt Event) error

// CommandBus routes each command to its single registered handler.
type CommandBus struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
	logger   *slog.Logger
}

// NewCommandBus creates an empty command bus. A nil logger discards output.
func NewCommandBus(logger *slog.Logger) *CommandBus {
	return &CommandBus{
		handlers: make(map[string]CommandHandler),
		logger:   orDiscard(logger),
	}
}

// Register binds a handler to a command name. Registering the same name
// twice fails with ErrDuplicateHandler.
func (b *CommandBus) Register(name string, handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}

	b.handlers[name] = handler

	return nil
}

// Execute routes cmd to its handler and returns the handler's result or
// error. Unknown commands fail with ErrNoHandler.
func (b *CommandBus) Execute(ctx context.Context, cmd Command) (any, error) {
	b.mu.RLock()
	handler, ok := b.handlers[cmd.CommandName()]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, cmd.CommandName())
	}

	return handler(ctx, cmd)
}

// SelfCheck verifies that every named command has a handler. Run it once at
// startup so a miswired pipeline fails fast instead of at dispatch time.
func (b *CommandBus) SelfCheck(names ...string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, name := range names {
		if _, ok := b.handlers[name]; !ok {
			return fmt.Errorf("%w: %s", ErrNoHandler, name)
		}
	}

	return nil
}

// Execute routes cmd through the bus and asserts the result to T.
func Execute[T any](ctx context.Context, b *CommandBus, cmd Command) (T, error) {
	var zero T

	res, execErr := b.Execute(ctx, cmd)
	if execErr != nil {
		return zero, execErr
	}

	if res == nil {
		return zero, nil
	}

	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("bus: command %s returned %T, want %T", cmd.CommandName(), res, zero)
	}

	return typed, nil
}

// EventBus fans events out to subscribers. Subscribers run serially in
// registration order, which preserves per-publisher FIFO; a failing or
// panicking subscriber is logged and never starves its siblings.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]EventHandler
	logger *slog.Logger
}

// NewEventBus creates an empty event bus. A nil logger discards output.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[string][]EventHandler),
		logger: orDiscard(logger),
	}
}

// Subscribe appends a handler for the named event. Multiple handlers per
// event are allowed; registration order is invocation order.
func (b *EventBus) Subscribe(name string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], handler)
}

// Publish delivers evt to every subscriber and returns once all have been
// invoked. Handler errors and panics are logged and isolated; they never
// reach the publisher.
func (b *EventBus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := b.subs[evt.EventName()]
	b.mu.RUnlock()

	for i, handler := range handlers {
		b.dispatch(ctx, evt, i, handler)
	}
}

// dispatch runs one handler under panic isolation.
func (b *EventBus) dispatch(ctx context.Context, evt Event, idx int, handler EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				slog.String("event", evt.EventName()),
				slog.Int("handler_index", idx),
				slog.Any("panic", r),
			)
		}
	}()

	if handleErr := handler(ctx, evt); handleErr != nil {
		b.logger.ErrorContext(ctx, "event handler failed",
			slog.String("event", evt.EventName()),
			slog.Int("handler_index", idx),
			slog.String("error", handleErr.Error()),
		)
	}
}

// orDiscard substitutes a discard logger for nil.
func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return logger
}
