package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/ctxlog"
	"github.com/san-kum/postsim/internal/diag"
	"github.com/san-kum/postsim/internal/registry"
)

// job is one work assignment sent coordinator -> worker. It carries
// enough of the model context for the worker process to rebuild its own
// read-only copy; workers never share memory with the coordinator.
type job struct {
	Index     int               `json:"index"`
	Path      string            `json:"path"`
	Time      float64           `json:"time"`
	Cycle     int               `json:"cycle"`
	Op        string            `json:"op"`
	ModelName string            `json:"model_name"`
	ModelRoot string            `json:"model_root"`
	OutDir    string            `json:"out_dir"`
	Options   map[string]string `json:"options,omitempty"`
}

// reply is one outcome sent worker -> coordinator.
type reply struct {
	Index    int                `json:"index"`
	Time     float64            `json:"time"`
	Cycle    int                `json:"cycle"`
	Values   map[string]float64 `json:"values,omitempty"`
	Artifact string             `json:"artifact,omitempty"`
	Err      string             `json:"err,omitempty"`
	Code     int                `json:"code,omitempty"`
}

// ServeWorker runs the worker side of one coordinator connection: it
// applies incoming jobs until the coordinator closes the stream. Worker
// ranks perform no output side effects beyond the render artifacts the
// work function itself writes.
func ServeWorker(ctx context.Context, conn net.Conn, reg *registry.Registry) error {
	defer conn.Close()
	logger := ctxlog.FromContext(ctx)

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	contexts := make(map[string]*batch.Context)

	for {
		var j job
		if err := dec.Decode(&j); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading job: %w", err)
		}

		wctx, ok := contexts[j.ModelRoot]
		if !ok {
			wctx = workerContext(ctx, j)
			contexts[j.ModelRoot] = wctx
		}

		r := reply{Index: j.Index, Time: j.Time, Cycle: j.Cycle}
		item := batch.WorkItem{Index: j.Index, Path: j.Path, Time: j.Time, Cycle: j.Cycle}

		op, err := reg.Get(j.Op)
		if err != nil {
			r.Err = err.Error()
		} else {
			oc := safeApply(op.Fn, item, wctx)
			if oc.Err != nil {
				r.Err = oc.Err.Error()
				r.Code = batch.ExitCode(oc.Err, 0)
			} else {
				r.Values = oc.Result.Values
				r.Artifact = oc.Result.ArtifactPath
			}
		}

		logger.Debug("worker applied item", "path", j.Path, "time", j.Time, "failed", r.Err != "")
		if err := enc.Encode(&r); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

// workerContext rebuilds the shared read-only context on the worker
// side. Diagnostics failures degrade to an absent series; the item will
// still process.
func workerContext(ctx context.Context, j job) *batch.Context {
	d, err := diag.Load(j.ModelRoot)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("diagnostics unavailable on worker", "root", j.ModelRoot, "error", err)
		d = nil
	}
	return &batch.Context{
		ModelName:   j.ModelName,
		ModelRoot:   j.ModelRoot,
		OutDir:      j.OutDir,
		Options:     j.Options,
		Diagnostics: d,
	}
}

func outcomeFromReply(item batch.WorkItem, r reply) batch.Outcome {
	if r.Err != "" {
		if r.Code != 0 {
			return batch.Outcome{Item: item, Err: &batch.ItemError{Code: r.Code, Reason: r.Err}}
		}
		return batch.Outcome{Item: item, Err: errors.New(r.Err)}
	}
	return batch.Outcome{
		Item: item,
		Result: &batch.PartialResult{
			Time:         r.Time,
			Cycle:        r.Cycle,
			Values:       r.Values,
			ArtifactPath: r.Artifact,
		},
	}
}
