package resilience

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16)

	var ran int64
	for i := 0; i < 100; i++ {
		err := pool.Submit(context.Background(), func() {
			atomic.AddInt64(&ran, 1)
		})
		require.NoError(t, err)
	}

	pool.Close()
	pool.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&ran))
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Close()
	pool.Wait()

	err := pool.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrWorkerPoolClosed)
}

func TestWorkerPool_SubmitHonorsContext(t *testing.T) {
	// One worker stuck on a blocking task and a full queue.
	pool := NewWorkerPool(1, 1)
	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-block }))
	require.NoError(t, pool.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	pool.Close()
	pool.Wait()
}

func TestWorkerPool_NilTaskIgnored(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	assert.NoError(t, pool.Submit(context.Background(), nil))
	pool.Close()
	pool.Wait()
}
