package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/dump"
)

// ASCIIPath is the text artifact an item will produce.
func ASCIIPath(wctx *batch.Context, item batch.WorkItem) string {
	return artifact(wctx, item, "txt")
}

// ASCII renders the dump's field profiles as text plots.
func ASCII(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  cycle %d  t=%.4f\n\n", wctx.ModelName, item.Cycle, item.Time)

	plotted := 0
	for _, name := range fieldNames(d) {
		vals := d.Fields[name]
		if len(vals) < 2 {
			continue
		}
		graph := asciigraph.Plot(vals,
			asciigraph.Height(10),
			asciigraph.Width(72),
			asciigraph.Caption(name),
		)
		b.WriteString(graph)
		b.WriteString("\n\n")
		plotted++
	}
	if plotted == 0 {
		return nil, fmt.Errorf("nothing to plot in %s", item.Path)
	}

	if err := os.MkdirAll(wctx.OutDir, 0755); err != nil {
		return nil, err
	}
	path := ASCIIPath(wctx, item)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return nil, err
	}

	return &batch.PartialResult{
		Time:         item.Time,
		Cycle:        item.Cycle,
		ArtifactPath: path,
	}, nil
}
