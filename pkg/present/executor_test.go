package present_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-imageload/pkg/present"
)

func TestExecutor_RunsTasksInOrder(t *testing.T) {
	// Arrange
	executor := present.NewExecutor(zerolog.Nop())
	require.NoError(t, executor.Start(context.Background()))
	t.Cleanup(func() { _ = executor.Stop(context.Background()) })

	var mu sync.Mutex
	var got []int

	// Act
	for i := 0; i < 20; i++ {
		i := i
		executor.Do(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	// Assert
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v, "Tasks must run in submission order")
	}
}

func TestExecutor_QueuesTasksSubmittedBeforeStart(t *testing.T) {
	// Arrange
	executor := present.NewExecutor(zerolog.Nop())
	ran := make(chan struct{})
	executor.Do(func() { close(ran) })

	// Act
	require.NoError(t, executor.Start(context.Background()))
	t.Cleanup(func() { _ = executor.Stop(context.Background()) })

	// Assert
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task queued before Start never ran")
	}
}

func TestExecutor_StartTwiceFails(t *testing.T) {
	executor := present.NewExecutor(zerolog.Nop())
	require.NoError(t, executor.Start(context.Background()))
	t.Cleanup(func() { _ = executor.Stop(context.Background()) })

	err := executor.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestExecutor_StopDrainsQueuedTasks(t *testing.T) {
	// Arrange
	executor := present.NewExecutor(zerolog.Nop())
	require.NoError(t, executor.Start(context.Background()))

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		executor.Do(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}

	// Act
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, executor.Stop(stopCtx))

	// Assert
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, ran, "Stop must not abandon queued tasks")
}

func TestExecutor_DropsTasksAfterStop(t *testing.T) {
	// Arrange
	executor := present.NewExecutor(zerolog.Nop())
	require.NoError(t, executor.Start(context.Background()))
	require.NoError(t, executor.Stop(context.Background()))

	// Act / Assert: a late submission is dropped without panic.
	executor.Do(func() { t.Error("task submitted after stop must not run") })
	time.Sleep(20 * time.Millisecond)
}
