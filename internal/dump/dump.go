package dump

import (
	"encoding/json"
	"fmt"
	"os"
)

// Dump is one timestamped snapshot of simulation state. Fields maps a
// variable name to its sampled values over the grid.
type Dump struct {
	Cycle  int                  `json:"cycle"`
	Time   float64              `json:"time"`
	Fields map[string][]float64 `json:"fields"`
}

// Header is the identity part of a dump, cheap to decode.
type Header struct {
	Cycle int     `json:"cycle"`
	Time  float64 `json:"time"`
}

// Read loads a full dump file.
func Read(path string) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing dump %s: %w", path, err)
	}
	return &d, nil
}

// ReadHeader loads only the ordering key of a dump file.
func ReadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing dump header %s: %w", path, err)
	}
	return &h, nil
}

// Write persists a dump file. Used by simulation producers and tests.
func Write(path string, d *Dump) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return enc.Encode(d)
}
