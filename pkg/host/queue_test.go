package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/sanction/pkg/host"
)

func TestQueueRunsInOrder(t *testing.T) {
	q := host.NewQueue(8, nil)

	var got []int
	for i := range 3 {
		require.NoError(t, q.Schedule("append", func() { got = append(got, i) }))
	}
	require.Equal(t, 3, q.Len())
	require.Equal(t, 3, q.RunPending())
	require.Equal(t, []int{0, 1, 2}, got)
	require.Equal(t, 0, q.Len())
}

func TestQueueFull(t *testing.T) {
	q := host.NewQueue(1, nil)

	require.NoError(t, q.Schedule("first", func() {}))
	err := q.Schedule("second", func() {})
	require.True(t, errors.Is(err, host.ErrQueueFull), "got %v", err)
}

func TestQueueClosed(t *testing.T) {
	q := host.NewQueue(4, nil)
	ran := false
	require.NoError(t, q.Schedule("pending", func() { ran = true }))

	q.Close()
	q.Close()
	require.ErrorIs(t, q.Schedule("late", func() {}), host.ErrClosed)

	require.NoError(t, q.Run(context.Background()))
	require.True(t, ran, "pending task should run after Close")
}

func TestQueueRecoversPanics(t *testing.T) {
	q := host.NewQueue(4, nil)
	ran := false
	require.NoError(t, q.Schedule("boom", func() { panic("boom") }))
	require.NoError(t, q.Schedule("after", func() { ran = true }))

	require.Equal(t, 2, q.RunPending())
	require.True(t, ran)
}

func TestQueueRunWorker(t *testing.T) {
	q := host.NewQueue(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	var wg sync.WaitGroup
	wg.Add(5)
	for range 5 {
		require.NoError(t, q.Schedule("done", wg.Done))
	}
	wg.Wait()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
