// Package render provides the built-in frame operations: each persists
// one plot artifact per dump file.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

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

func artifact(wctx *batch.Context, item batch.WorkItem, ext string) string {
	return filepath.Join(wctx.OutDir, fmt.Sprintf("frame_%06d.%s", item.Cycle, ext))
}

// FramePath is the PNG artifact an item will produce.
func FramePath(wctx *batch.Context, item batch.WorkItem) string {
	return artifact(wctx, item, "png")
}

// Frame renders the dump's field profiles to a PNG chart.
func Frame(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	series := make([]chart.Series, 0, len(d.Fields))
	for _, name := range fieldNames(d) {
		vals := d.Fields[name]
		if len(vals) < 2 {
			continue
		}
		xs := make([]float64, len(vals))
		for i := range xs {
			xs[i] = float64(i)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: vals,
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("nothing to plot in %s", item.Path)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s cycle %d t=%.4f", wctx.ModelName, item.Cycle, item.Time),
		Width:  800,
		Height: 400,
		XAxis:  chart.XAxis{Name: "index"},
		YAxis:  chart.YAxis{Name: "value"},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := os.MkdirAll(wctx.OutDir, 0755); err != nil {
		return nil, err
	}
	path := FramePath(wctx, item)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := graph.Render(chart.PNG, f); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", path, err)
	}

	return &batch.PartialResult{
		Time:         item.Time,
		Cycle:        item.Cycle,
		ArtifactPath: path,
	}, nil
}
