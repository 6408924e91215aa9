// Package dispatch drives one model's batch through a backend: it
// filters already-finished items when resuming, applies the rest, feeds
// completions to the merger, and accounts for every item exactly once.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/san-kum/postsim/internal/backend"
	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/ctxlog"
	"github.com/san-kum/postsim/internal/merge"
	"github.com/san-kum/postsim/internal/registry"
	"github.com/san-kum/postsim/internal/report"
)

// Event is one item resolution, emitted in completion order for
// progress display.
type Event struct {
	Item   batch.WorkItem
	Status report.Status
	Err    error
}

// Options control one dispatch run.
type Options struct {
	// Resume skips items whose output already exists.
	Resume bool

	// Timeout bounds the whole batch; zero means no deadline. Items
	// still unaccounted for at the deadline are reported failed.
	Timeout time.Duration

	// Exists reports whether the summary store already holds time t.
	// Used for resume of analysis batches; render batches check their
	// artifact paths instead.
	Exists func(t float64) bool

	// Events, when set, receives one event per resolved item and is
	// closed when the run ends.
	Events chan<- Event
}

// Run applies op to every item of the model and merges the results.
// Item failures are isolated and reported; the returned error covers
// run-level faults only (backend setup, merge write failures).
func Run(ctx context.Context, be backend.Backend, model *batch.Model, wctx *batch.Context, op registry.Operation, merger merge.Merger, opts Options) (*report.ModelReport, error) {
	logger := ctxlog.FromContext(ctx)
	rep := &report.ModelReport{Model: model.Name, Operation: op.Name}
	start := time.Now()
	defer func() { rep.Elapsed = time.Since(start) }()

	if opts.Events != nil {
		defer close(opts.Events)
	}
	emit := func(item batch.WorkItem, status report.Status, err error) {
		rep.Add(item, status, err)
		if opts.Events != nil {
			opts.Events <- Event{Item: item, Status: status, Err: err}
		}
	}

	// Worker ranks only serve; the coordinator owns all accounting.
	if be.Role() == backend.Worker {
		out, err := be.Apply(ctx, nil, wctx, op)
		if err != nil {
			return nil, err
		}
		for range out {
		}
		return rep, nil
	}

	pending := make([]batch.WorkItem, 0, len(model.Items))
	for _, item := range model.Items {
		if opts.Resume && finished(item, wctx, op, opts) {
			logger.Debug("item already finished", "model", model.Name, "time", item.Time)
			emit(item, report.Skipped, nil)
			if err := merger.Discard(item.Time); err != nil {
				return rep, err
			}
			continue
		}
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return rep, nil
	}

	tctx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	out, err := be.Apply(tctx, pending, wctx, op)
	if err != nil {
		return rep, err
	}

	outstanding := make(map[int]batch.WorkItem, len(pending))
	for _, item := range pending {
		outstanding[item.Index] = item
	}

	for len(outstanding) > 0 {
		var oc batch.Outcome
		var ok bool
		select {
		case oc, ok = <-out:
		case <-tctx.Done():
			ok = false
		}
		if !ok {
			break
		}
		delete(outstanding, oc.Item.Index)

		if oc.Err != nil {
			logger.Warn("item failed", "model", model.Name, "time", oc.Item.Time, "error", oc.Err)
			emit(oc.Item, report.Failed, oc.Err)
			if err := merger.Discard(oc.Item.Time); err != nil {
				return rep, err
			}
			continue
		}
		if err := merger.Offer(oc.Result); err != nil {
			return rep, fmt.Errorf("merging result at t=%g: %w", oc.Item.Time, err)
		}
		emit(oc.Item, report.OK, nil)
	}

	// Anything still outstanding was abandoned by a deadline or a dead
	// backend. Each item is still accounted for, as a failure.
	for _, item := range outstanding {
		var cause error
		if tctx.Err() == context.DeadlineExceeded {
			cause = fmt.Errorf("abandoned at t=%g: %w", item.Time, batch.ErrTimeout)
		} else if tctx.Err() != nil {
			cause = tctx.Err()
		} else {
			cause = fmt.Errorf("backend stopped before item at t=%g completed", item.Time)
		}
		emit(item, report.Failed, cause)
		if err := merger.Discard(item.Time); err != nil {
			return rep, err
		}
	}

	return rep, nil
}

// finished reports whether an item's output from a prior run already
// exists: a store entry at its time for analysis, the frame file for
// render.
func finished(item batch.WorkItem, wctx *batch.Context, op registry.Operation, opts Options) bool {
	if op.Kind == registry.Render {
		if op.Artifact == nil {
			return false
		}
		_, err := os.Stat(op.Artifact(wctx, item))
		return err == nil
	}
	return opts.Exists != nil && opts.Exists(item.Time)
}
