package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/ctxlog"
	"github.com/san-kum/postsim/internal/registry"
)

const (
	acceptTimeout = 30 * time.Second
	dialAttempts  = 20
	dialBackoff   = 250 * time.Millisecond
)

// Distributed is the coordinator/worker pool over a fixed, externally
// launched set of ranks. Rank 0 accepts one connection per peer rank,
// dispatches one job at a time per idle worker, and is the only rank
// that observes completions. Worker ranks dial in and serve jobs; their
// Apply returns an empty outcome stream.
//
// A lost worker connection fails only its in-flight item; the rest of
// the queue drains to the surviving workers.
type Distributed struct {
	Env      Environment
	Registry *registry.Registry

	mu    sync.Mutex
	ln    net.Listener
	conns []net.Conn
}

func (d *Distributed) Role() Role { return d.Env.Role() }

func (d *Distributed) Apply(ctx context.Context, items []batch.WorkItem, wctx *batch.Context, op registry.Operation) (<-chan batch.Outcome, error) {
	if d.Env.Role() == Worker {
		if err := d.serve(ctx); err != nil {
			return nil, err
		}
		out := make(chan batch.Outcome)
		close(out)
		return out, nil
	}

	if err := d.ensureWorkers(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	conns := make([]net.Conn, len(d.conns))
	copy(conns, d.conns)
	d.mu.Unlock()

	jobs := make(chan batch.WorkItem)
	out := make(chan batch.Outcome, len(items))

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			d.drive(ctx, conn, jobs, out, wctx, op)
		}(conn)
	}

	workersIdle := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersIdle)
	}()

	// The batch deadline is fatal to the whole run, so tearing the
	// pool down on ctx expiry is safe; a normal completion leaves the
	// connections open for the next model.
	applyDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.Close()
		case <-applyDone:
		}
	}()

	go func() {
		defer close(out)
		defer close(applyDone)

		pending := items
		for len(pending) > 0 {
			item := pending[0]
			select {
			case jobs <- item:
				pending = pending[1:]
			case <-ctx.Done():
				close(jobs)
				<-workersIdle
				return
			case <-workersIdle:
				// every worker connection is gone
				for _, it := range pending {
					out <- batch.Outcome{Item: it, Err: errors.New("no distributed workers available")}
				}
				close(jobs)
				return
			}
		}
		close(jobs)
		<-workersIdle
	}()

	return out, nil
}

// drive feeds one worker connection one job at a time. A connection
// error fails the in-flight item and retires this worker.
func (d *Distributed) drive(ctx context.Context, conn net.Conn, jobs <-chan batch.WorkItem, out chan<- batch.Outcome, wctx *batch.Context, op registry.Operation) {
	logger := ctxlog.FromContext(ctx)
	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	for {
		var item batch.WorkItem
		var ok bool
		select {
		case item, ok = <-jobs:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		j := job{
			Index:     item.Index,
			Path:      item.Path,
			Time:      item.Time,
			Cycle:     item.Cycle,
			Op:        op.Name,
			ModelName: wctx.ModelName,
			ModelRoot: wctx.ModelRoot,
			OutDir:    wctx.OutDir,
			Options:   wctx.Options,
		}
		if err := enc.Encode(&j); err != nil {
			logger.Debug("worker connection lost on send", "error", err)
			out <- batch.Outcome{Item: item, Err: fmt.Errorf("worker connection lost: %w", err)}
			d.retire(conn)
			return
		}

		var r reply
		if err := dec.Decode(&r); err != nil {
			logger.Debug("worker connection lost on receive", "error", err)
			out <- batch.Outcome{Item: item, Err: fmt.Errorf("worker connection lost: %w", err)}
			d.retire(conn)
			return
		}
		out <- outcomeFromReply(item, r)
	}
}

// retire drops a dead connection from the pool so later Apply calls
// never dispatch to it.
func (d *Distributed) retire(conn net.Conn) {
	conn.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.conns {
		if c == conn {
			d.conns = append(d.conns[:i], d.conns[i+1:]...)
			return
		}
	}
}

// ensureWorkers accepts one connection per peer rank on first use; the
// pool persists across Apply calls until Close.
func (d *Distributed) ensureWorkers(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) > 0 {
		return nil
	}

	if d.ln == nil {
		ln, err := net.Listen("tcp", d.Env.CoordAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", d.Env.CoordAddr, err)
		}
		d.ln = ln
	}

	need := d.Env.WorldSize - 1
	deadline := time.Now().Add(acceptTimeout)
	for len(d.conns) < need {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tcp, ok := d.ln.(*net.TCPListener); ok {
			tcp.SetDeadline(deadline)
		}
		conn, err := d.ln.Accept()
		if err != nil {
			return fmt.Errorf("accepting distributed workers (%d/%d): %w", len(d.conns), need, err)
		}
		d.conns = append(d.conns, conn)
	}
	return nil
}

// serve is the worker-rank side: dial the coordinator, then apply jobs
// until it closes the stream. The coordinator may start after us, so
// dialing retries briefly.
func (d *Distributed) serve(ctx context.Context) error {
	var conn net.Conn
	var err error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, err = net.Dial("tcp", d.Env.CoordAddr)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	if err != nil {
		return fmt.Errorf("dialing coordinator %s: %w", d.Env.CoordAddr, err)
	}
	return ServeWorker(ctx, conn, d.Registry)
}

// Close releases the worker pool and listener.
func (d *Distributed) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, conn := range d.conns {
		conn.Close()
	}
	d.conns = nil
	if d.ln != nil {
		d.ln.Close()
		d.ln = nil
	}
	return nil
}
