package backend

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/registry"
)

// Local is a bounded pool of workers applying the work function within
// this process. Worker count defaults to min(CPU count, item count).
type Local struct {
	Workers int
}

func (l *Local) Role() Role { return Coordinator }

func (l *Local) Apply(ctx context.Context, items []batch.WorkItem, wctx *batch.Context, op registry.Operation) (<-chan batch.Outcome, error) {
	n := l.Workers
	if n <= 0 {
		n = runtime.NumCPU()
		if len(items) < n {
			n = len(items)
		}
	}
	if n < 1 {
		n = 1
	}

	jobs := make(chan batch.WorkItem)
	// Buffered so late completions after a timeout never block a
	// worker goroutine once the caller stops reading.
	out := make(chan batch.Outcome, len(items))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					continue
				}
				out <- safeApply(op.Fn, item, wctx)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// safeApply runs the work function, converting a panic into a failure
// outcome so one bad item never takes down its siblings.
func safeApply(fn batch.WorkFunc, item batch.WorkItem, wctx *batch.Context) (oc batch.Outcome) {
	oc.Item = item
	defer func() {
		if r := recover(); r != nil {
			oc.Result = nil
			oc.Err = fmt.Errorf("work function panic: %v", r)
		}
	}()
	oc.Result, oc.Err = fn(item, wctx)
	if oc.Err == nil && oc.Result == nil {
		oc.Err = fmt.Errorf("work function returned no result")
	}
	return oc
}
