package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

func TestInMemoryEventBus_RoutesByEventType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, EnableMetrics: true})
	defer bus.Close()

	var questions, answers, all int32
	require.NoError(t, bus.Subscribe(shared.EventQuestionChanged, func(shared.Event) error {
		atomic.AddInt32(&questions, 1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventAnswerChanged, func(shared.Event) error {
		atomic.AddInt32(&answers, 1)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		atomic.AddInt32(&all, 1)
		return nil
	}))

	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "first", time.Now().UTC())))
	require.NoError(t, bus.Publish(questionInserted("q2", "task1", "student1", "second", time.Now().UTC())))

	assert.EqualValues(t, 2, atomic.LoadInt32(&questions))
	assert.EqualValues(t, 0, atomic.LoadInt32(&answers))
	assert.EqualValues(t, 2, atomic.LoadInt32(&all))

	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 2, snap.TotalPublished)
	assert.EqualValues(t, 4, snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

func TestInMemoryEventBus_AsyncExecutesAllHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 4})
	defer bus.Close()

	var handled int32
	require.NoError(t, bus.Subscribe(shared.EventQuestionChanged, func(shared.Event) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}))

	for i := 0; i < 8; i++ {
		require.NoError(t, bus.Publish(questionInserted("q", "task1", "student1", "async", time.Now().UTC())))
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) == 8
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryEventBus_RejectsAfterClose(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())

	err := bus.Publish(questionInserted("q1", "task1", "student1", "late", time.Now().UTC()))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventQuestionChanged, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, EnableMetrics: true})
	defer bus.Close()

	var second int32
	require.NoError(t, bus.Subscribe(shared.EventQuestionChanged, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventQuestionChanged, func(shared.Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	}))

	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "text", time.Now().UTC())))

	assert.EqualValues(t, 1, atomic.LoadInt32(&second))
	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 2, snap.TotalHandlerExecs)
	assert.Equal(t, 0.5, snap.HandlerSuccessRate)
}
