package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/dump"
)

var svgPalette = []string{"#00ff88", "#00ccff", "#ffaa00", "#ff4444", "#ff00ff", "#ffffff"}

// SVGPath is the SVG artifact an item will produce.
func SVGPath(wctx *batch.Context, item batch.WorkItem) string {
	return artifact(wctx, item, "svg")
}

// SVG renders the dump's field profiles as polylines in one SVG frame.
func SVG(item batch.WorkItem, wctx *batch.Context) (*batch.PartialResult, error) {
	d, err := dump.Read(item.Path)
	if err != nil {
		return nil, err
	}

	names := fieldNames(d)
	doc := fieldsToSVG(d, names, 800, 400)
	if doc == "" {
		return nil, fmt.Errorf("nothing to plot in %s", item.Path)
	}

	if err := os.MkdirAll(wctx.OutDir, 0755); err != nil {
		return nil, err
	}
	path := SVGPath(wctx, item)
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return nil, err
	}

	return &batch.PartialResult{
		Time:         item.Time,
		Cycle:        item.Cycle,
		ArtifactPath: path,
	}, nil
}

func fieldsToSVG(d *dump.Dump, names []string, width, height int) string {
	// Global bounds across all fields so the frame is comparable
	// between fields.
	minY, maxY := 0.0, 0.0
	maxLen := 0
	first := true
	for _, name := range names {
		for _, v := range d.Fields[name] {
			if first {
				minY, maxY = v, v
				first = false
				continue
			}
			if v < minY {
				minY = v
			}
			if v > maxY {
				maxY = v
			}
		}
		if len(d.Fields[name]) > maxLen {
			maxLen = len(d.Fields[name])
		}
	}
	if maxLen < 2 {
		return ""
	}

	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, name := range names {
		vals := d.Fields[name]
		if len(vals) < 2 {
			continue
		}
		color := svgPalette[i%len(svgPalette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for j, v := range vals {
			x := float64(j) / float64(len(vals)-1) * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			if j == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")
	}

	sb.WriteString(fmt.Sprintf(`<text x="8" y="16" fill="#888899" font-family="monospace" font-size="12">cycle %d t=%.4f</text>
</svg>`, d.Cycle, d.Time))
	return sb.String()
}
