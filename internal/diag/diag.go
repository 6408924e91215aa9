// Package diag loads a model's own historical diagnostic time series
// from its log file into the shared work context.
package diag

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/postsim/internal/batch"
)

// FileName is the diagnostics log a run writes next to its dumps.
const FileName = "diagnostics.csv"

// Load reads root/diagnostics.csv into a Diagnostics series. The file
// has a header row "time,<var>,..." followed by numeric rows. A missing
// file is not an error: the model simply has no diagnostics.
func Load(root string) (*batch.Diagnostics, error) {
	path := filepath.Join(root, FileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	if len(header) < 2 || header[0] != "time" {
		return nil, fmt.Errorf("%s: first column must be time", path)
	}
	names := header[1:]

	d := &batch.Diagnostics{
		Times:  make([]float64, 0, len(records)-1),
		Series: make(map[string][]float64, len(names)),
	}
	for _, name := range names {
		d.Series[name] = make([]float64, 0, len(records)-1)
	}

	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) != len(header) {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		vals := make([]float64, len(names))
		ok := true
		for j := range names {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				ok = false
				break
			}
			vals[j] = v
		}
		if !ok {
			continue
		}
		d.Times = append(d.Times, t)
		for j, name := range names {
			d.Series[name] = append(d.Series[name], vals[j])
		}
	}

	if len(d.Times) == 0 {
		return nil, nil
	}
	return d, nil
}
