package bus

import "context"

// Typed adapts a handler of a concrete command type to the CommandHandler
// signature. A payload of the wrong type fails instead of panicking, so a
// miswired registration surfaces as an error at dispatch.
func Typed[T Command](fn func(ctx context.Context, cmd T) (any, error)) CommandHandler {
	return func(ctx context.Context, cmd Command) (any, error) {
		typed, ok := cmd.(T)
		if !ok {
			return nil, &payloadError{name: cmd.CommandName()}
		}

		return fn(ctx, typed)
	}
}

// On adapts a handler of a concrete event type to the EventHandler
// signature. Events of another concrete type under the same name are
// reported as an error, which the bus logs.
func On[T Event](fn func(ctx context.Context, evt T) error) EventHandler {
	return func(ctx context.Context, evt Event) error {
		typed, ok := evt.(T)
		if !ok {
			return &payloadError{name: evt.EventName()}
		}

		return fn(ctx, typed)
	}
}

// payloadError marks a name registered against the wrong concrete type.
type payloadError struct {
	name string
}

func (e *payloadError) Error() string {
	return "bus: payload type mismatch for " + e.name
}
