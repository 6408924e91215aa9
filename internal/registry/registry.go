// Package registry maps stable operation names to work functions. The
// mapping is built once at startup; unknown keys fail loudly instead of
// silently doing nothing.
package registry

import (
	"fmt"
	"sort"

	"github.com/san-kum/postsim/internal/analysis"
	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/render"
)

// Kind distinguishes operations that produce named quantities for the
// summary store from operations that produce per-item frame artifacts.
type Kind int

const (
	Analysis Kind = iota
	Render
)

func (k Kind) String() string {
	if k == Render {
		return "render"
	}
	return "analysis"
}

// Operation is a named work-function capability. Artifact is set for
// render operations and yields the output path an item will produce,
// which also drives resume existence checks.
type Operation struct {
	Name     string
	Kind     Kind
	Fn       batch.WorkFunc
	Artifact func(wctx *batch.Context, item batch.WorkItem) string
}

type Registry struct {
	ops map[string]Operation
}

// Default builds the registry of built-in operations.
func Default() *Registry {
	r := &Registry{ops: make(map[string]Operation)}

	r.Register(Operation{Name: "totals", Kind: Analysis, Fn: analysis.Totals})
	r.Register(Operation{Name: "extrema", Kind: Analysis, Fn: analysis.Extrema})
	r.Register(Operation{Name: "rms", Kind: Analysis, Fn: analysis.RMS})
	r.Register(Operation{Name: "drift", Kind: Analysis, Fn: analysis.Drift})

	r.Register(Operation{Name: "frame", Kind: Render, Fn: render.Frame, Artifact: render.FramePath})
	r.Register(Operation{Name: "ascii", Kind: Render, Fn: render.ASCII, Artifact: render.ASCIIPath})
	r.Register(Operation{Name: "svg", Kind: Render, Fn: render.SVG, Artifact: render.SVGPath})

	return r
}

func (r *Registry) Register(op Operation) {
	r.ops[op.Name] = op
}

// Get looks an operation up by exact key.
func (r *Registry) Get(name string) (Operation, error) {
	op, ok := r.ops[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", batch.ErrUnknownOperation, name)
	}
	return op, nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []Operation {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	ops := make([]Operation, 0, len(names))
	for _, name := range names {
		ops = append(ops, r.ops[name])
	}
	return ops
}
