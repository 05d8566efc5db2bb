package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEachIndexVisitsEveryIndex(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]int)

	ForEachIndex(context.Background(), 8, 100, func(_ context.Context, _ int, i int) {
		mu.Lock()
		seen[i]++
		mu.Unlock()
	})

	assert.Len(t, seen, 100)
	for i, count := range seen {
		assert.Equal(t, 1, count, "index %d visited %d times", i, count)
	}
}

func TestForEachIndexWorkerIDsAreBounded(t *testing.T) {
	var mu sync.Mutex
	workers := make(map[int]struct{})

	ForEachIndex(context.Background(), 4, 50, func(_ context.Context, worker int, _ int) {
		mu.Lock()
		workers[worker] = struct{}{}
		mu.Unlock()
	})

	assert.LessOrEqual(t, len(workers), 4)
	for w := range workers {
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 4)
	}
}

func TestForEachIndexCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var count atomic.Int64
	ForEachIndex(ctx, 2, 1000, func(_ context.Context, _ int, i int) {
		if count.Add(1) == 5 {
			cancel()
		}
	})

	assert.Less(t, count.Load(), int64(1000), "cancellation must stop scheduling new indexes")
	cancel()
}

func TestForEachIndexEdgeCases(t *testing.T) {
	var count atomic.Int64
	fn := func(_ context.Context, _ int, _ int) { count.Add(1) }

	ForEachIndex(context.Background(), 4, 0, fn)
	assert.Equal(t, int64(0), count.Load())

	ForEachIndex(context.Background(), 0, 3, fn)
	assert.Equal(t, int64(3), count.Load())

	ForEachIndex(context.Background(), 10, 2, fn)
	assert.Equal(t, int64(5), count.Load())
}
