package bus_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
)

type pingCommand struct{ payload string }

func (pingCommand) CommandName() string { return "Ping" }

type pingedEvent struct{ payload string }

func (pingedEvent) EventName() string { return "Pinged" }

func TestCommandBusRoutesToSingleHandler(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)

	registerErr := b.Register("Ping", func(_ context.Context, cmd bus.Command) (any, error) {
		ping, ok := cmd.(pingCommand)
		require.True(t, ok)

		return "pong:" + ping.payload, nil
	})
	require.NoError(t, registerErr)

	res, execErr := b.Execute(context.Background(), pingCommand{payload: "x"})

	require.NoError(t, execErr)
	assert.Equal(t, "pong:x", res)
}

func TestCommandBusRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)

	_, execErr := b.Execute(context.Background(), pingCommand{})

	require.Error(t, execErr)
	assert.ErrorIs(t, execErr, bus.ErrNoHandler)
}

func TestCommandBusRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)
	noop := func(context.Context, bus.Command) (any, error) { return nil, nil }

	require.NoError(t, b.Register("Ping", noop))

	registerErr := b.Register("Ping", noop)

	assert.ErrorIs(t, registerErr, bus.ErrDuplicateHandler)
}

func TestCommandBusPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)
	handlerErr := errors.New("handler exploded")

	require.NoError(t, b.Register("Ping", func(context.Context, bus.Command) (any, error) {
		return nil, handlerErr
	}))

	_, execErr := b.Execute(context.Background(), pingCommand{})

	assert.ErrorIs(t, execErr, handlerErr)
}

func TestCommandBusSelfCheck(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)
	noop := func(context.Context, bus.Command) (any, error) { return nil, nil }

	require.NoError(t, b.Register("Ping", noop))

	assert.NoError(t, b.SelfCheck("Ping"))
	assert.ErrorIs(t, b.SelfCheck("Ping", "Missing"), bus.ErrNoHandler)
}

func TestTypedExecute(t *testing.T) {
	t.Parallel()

	b := bus.NewCommandBus(nil)

	require.NoError(t, b.Register("Ping", func(context.Context, bus.Command) (any, error) {
		return 42, nil
	}))

	n, execErr := bus.Execute[int](context.Background(), b, pingCommand{})

	require.NoError(t, execErr)
	assert.Equal(t, 42, n)

	_, wrongErr := bus.Execute[string](context.Background(), b, pingCommand{})
	assert.Error(t, wrongErr)
}

func TestEventBusInvokesAllSubscribersInOrder(t *testing.T) {
	t.Parallel()

	b := bus.NewEventBus(nil)

	var order []int

	b.Subscribe("Pinged", func(context.Context, bus.Event) error {
		order = append(order, 1)

		return nil
	})
	b.Subscribe("Pinged", func(context.Context, bus.Event) error {
		order = append(order, 2)

		return nil
	})

	b.Publish(context.Background(), pingedEvent{})

	assert.Equal(t, []int{1, 2}, order)
}

func TestEventBusIsolatesFailingHandler(t *testing.T) {
	t.Parallel()

	b := bus.NewEventBus(nil)

	var reached atomic.Int32

	b.Subscribe("Pinged", func(context.Context, bus.Event) error {
		return errors.New("first handler fails")
	})
	b.Subscribe("Pinged", func(context.Context, bus.Event) error {
		panic("second handler panics")
	})
	b.Subscribe("Pinged", func(context.Context, bus.Event) error {
		reached.Add(1)

		return nil
	})

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), pingedEvent{})
	})
	assert.Equal(t, int32(1), reached.Load())
}

func TestEventBusNoSubscribersIsNoop(t *testing.T) {
	t.Parallel()

	b := bus.NewEventBus(nil)

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), pingedEvent{payload: "quiet"})
	})
}
