package dump

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/san-kum/postsim/internal/batch"
)

// DefaultPattern matches the dump files a run writes by default.
const DefaultPattern = "dump_*.json"

// Window bounds enumeration to simulation times in [Start, End].
// End < 0 means unbounded above.
type Window struct {
	Start float64
	End   float64
}

// All is the unbounded window.
var All = Window{Start: 0, End: -1}

func (w Window) Contains(t float64) bool {
	if t < w.Start {
		return false
	}
	return w.End < 0 || t <= w.End
}

// Discover enumerates the dump files under root matching pattern,
// ordered by (time, cycle) and filtered to the window. The returned
// model is never reordered afterwards. Zero matching items is an error
// wrapping batch.ErrDiscoveryEmpty unless allowEmpty is set.
func Discover(root, pattern string, window Window, allowEmpty bool) (*batch.Model, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	paths, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad dump pattern %q: %w", pattern, err)
	}

	items := make([]batch.WorkItem, 0, len(paths))
	for _, p := range paths {
		h, err := ReadHeader(p)
		if err != nil {
			return nil, err
		}
		if !window.Contains(h.Time) {
			continue
		}
		items = append(items, batch.WorkItem{
			Path:  p,
			Time:  h.Time,
			Cycle: h.Cycle,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Time != items[j].Time {
			return items[i].Time < items[j].Time
		}
		return items[i].Cycle < items[j].Cycle
	})
	for i := range items {
		items[i].Index = i
	}

	if len(items) == 0 && !allowEmpty {
		return nil, fmt.Errorf("%s: %w", root, batch.ErrDiscoveryEmpty)
	}

	return &batch.Model{
		Name:  filepath.Base(root),
		Root:  root,
		Items: items,
	}, nil
}
