package utils

import (
	"context"
	"sync"
)

// ForEachIndex runs fn for every index in [0, total) across a bounded pool of
// workers. It blocks until all scheduled indexes are done. When ctx is
// cancelled no new indexes are handed out; in-flight calls are left to finish
// on their own (fn receives ctx and is expected to honor it). The worker id
// lets callers keep per-worker state such as a pacing limiter.
func ForEachIndex(ctx context.Context, workers int, total int, fn func(ctx context.Context, worker, i int)) {
	if total <= 0 {
		return
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	indexes := make(chan int)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := range indexes {
				fn(ctx, worker, i)
			}
		}(w)
	}

	for i := 0; i < total; i++ {
		select {
		case indexes <- i:
		case <-ctx.Done():
			close(indexes)
			wg.Wait()
			return
		}
	}
	close(indexes)
	wg.Wait()
}
