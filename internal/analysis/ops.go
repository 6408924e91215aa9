// Package analysis provides the built-in per-dump reducer operations.
// Each reduces the field arrays of one dump to named scalars tagged with
// the dump's time.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/dump"
)

func fieldNames(d *dump.Dump) []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func result(item batch.WorkItem) *batch.PartialResult {
	return &batch.PartialResult{
		Time:   item.Time,
		Cycle:  item.Cycle,
		Values: make(map[string]float64),
	}
}

// Totals sums every field.
func Totals(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	res := result(item)
	for _, name := range fieldNames(d) {
		sum := 0.0
		for _, v := range d.Fields[name] {
			sum += v
		}
		res.Values[name+"_total"] = sum
	}
	return res, nil
}

// Extrema records the minimum and maximum of every field.
func Extrema(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	res := result(item)
	for _, name := range fieldNames(d) {
		vals := d.Fields[name]
		if len(vals) == 0 {
			return nil, fmt.Errorf("field %s is empty in %s", name, item.Path)
		}
		lo, hi := vals[0], vals[0]
		for _, v := range vals {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		res.Values[name+"_min"] = lo
		res.Values[name+"_max"] = hi
	}
	return res, nil
}

// RMS records the root mean square of every field.
func RMS(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	res := result(item)
	for _, name := range fieldNames(d) {
		vals := d.Fields[name]
		if len(vals) == 0 {
			return nil, fmt.Errorf("field %s is empty in %s", name, item.Path)
		}
		sum := 0.0
		for _, v := range vals {
			sum += v * v
		}
		res.Values[name+"_rms"] = math.Sqrt(sum / float64(len(vals)))
	}
	return res, nil
}

// Drift records the mean of every field and, when the model carries a
// matching diagnostics series, the deviation of that mean from the
// series interpolated at the dump time.
func Drift(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	res := result(item)
	for _, name := range fieldNames(d) {
		vals := d.Fields[name]
		if len(vals) == 0 {
			return nil, fmt.Errorf("field %s is empty in %s", name, item.Path)
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		mean := sum / float64(len(vals))
		res.Values[name+"_mean"] = mean

		if ref, ok := wctx.Diagnostics.Interp(name, item.Time); ok {
			res.Values[name+"_drift"] = mean - ref
		}
	}
	return res, nil
}
