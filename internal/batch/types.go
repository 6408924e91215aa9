package batch

// WorkItem identifies one dump file within a model run. Items are
// immutable once enumerated.
type WorkItem struct {
	Index int
	Path  string
	Time  float64
	Cycle int
}

// Model is one simulation run: a root directory plus the ordered dump
// files discovered under it.
type Model struct {
	Name  string
	Root  string
	Items []WorkItem
}

// Times returns the item times in enumeration order.
func (m *Model) Times() []float64 {
	ts := make([]float64, len(m.Items))
	for i, it := range m.Items {
		ts[i] = it.Time
	}
	return ts
}

// Context is the read-only data shared by all items of one model. Worker
// processes may each hold their own copy; nothing writes back into it
// after construction.
type Context struct {
	ModelName   string
	ModelRoot   string
	OutDir      string
	Options     map[string]string
	Diagnostics *Diagnostics
}

// Diagnostics is a model's own historical time series, loaded from its
// diagnostics log. May be absent entirely.
type Diagnostics struct {
	Times  []float64
	Series map[string][]float64
}

// Interp linearly interpolates the named series at time t, clamping at
// the ends. ok is false when the series does not exist or is empty.
func (d *Diagnostics) Interp(name string, t float64) (float64, bool) {
	if d == nil {
		return 0, false
	}
	vals, ok := d.Series[name]
	if !ok || len(vals) == 0 || len(d.Times) != len(vals) {
		return 0, false
	}
	if t <= d.Times[0] {
		return vals[0], true
	}
	last := len(d.Times) - 1
	if t >= d.Times[last] {
		return vals[last], true
	}
	for i := 1; i <= last; i++ {
		if d.Times[i] >= t {
			t0, t1 := d.Times[i-1], d.Times[i]
			if t1 == t0 {
				return vals[i], true
			}
			f := (t - t0) / (t1 - t0)
			return vals[i-1] + f*(vals[i]-vals[i-1]), true
		}
	}
	return vals[last], true
}

// PartialResult is the product of applying the work function to one
// item: named scalar quantities for analysis operations, a persisted
// artifact path for render operations.
type PartialResult struct {
	Time         float64
	Cycle        int
	Values       map[string]float64
	ArtifactPath string
}

// Outcome pairs an item with either its result or its failure reason.
type Outcome struct {
	Item   WorkItem
	Result *PartialResult
	Err    error
}

// WorkFunc applies one operation to one item under a shared context.
type WorkFunc func(item WorkItem, wctx *Context) (*PartialResult, error)
