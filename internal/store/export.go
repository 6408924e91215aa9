package store

import (
	"encoding/json"
	"io"
)

type ExportPoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

type ExportData struct {
	ID        string                   `json:"id"`
	Model     string                   `json:"model"`
	Operation string                   `json:"operation"`
	Count     int                      `json:"count"`
	Variables []string                 `json:"variables"`
	Series    map[string][]ExportPoint `json:"series"`
}

// ExportJSON writes the whole store as one JSON document.
func (s *Store) ExportJSON(w io.Writer) error {
	rows, err := s.readRows()
	if err != nil {
		return err
	}

	data := ExportData{
		ID:        s.meta.ID,
		Model:     s.meta.Model,
		Operation: s.meta.Operation,
		Count:     s.meta.Count,
		Variables: s.variables(),
		Series:    make(map[string][]ExportPoint),
	}
	for _, r := range rows {
		data.Series[r.name] = append(data.Series[r.name], ExportPoint{Time: r.t, Value: r.v})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
