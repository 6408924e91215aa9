// Package store implements the summary store: an append-only,
// time-indexed persistent mapping of variable name to (time, value)
// sequences. Within a store every variable's sequence is strictly
// ascending in time; appends that would break that are rejected, never
// silently reordered. Exactly one writer may hold a store open.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/postsim/internal/batch"
)

const (
	metaFile   = "metadata.json"
	seriesFile = "series.csv"
	lockFile   = ".lock"
)

type Metadata struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	Variables []string  `json:"variables"`
	Count     int       `json:"count"`
	LastTime  float64   `json:"last_time"`
}

type Store struct {
	dir      string
	meta     Metadata
	f        *os.File
	w        *csv.Writer
	writable bool
	locked   bool

	times     map[float64]bool
	varSet    map[string]bool
	lastTime  float64
	hasLast   bool
	lastNames map[string]bool
}

// Create makes a fresh writable store in dir, truncating any prior
// content. It holds the exclusive writer lock until Close.
func Create(dir, model, operation string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := acquireLock(dir); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, seriesFile))
	if err != nil {
		releaseLock(dir)
		return nil, err
	}

	s := &Store{
		dir: dir,
		meta: Metadata{
			ID:        uuid.NewString(),
			Model:     model,
			Operation: operation,
			Created:   time.Now(),
		},
		f:         f,
		w:         csv.NewWriter(f),
		writable:  true,
		locked:    true,
		times:     make(map[float64]bool),
		varSet:    make(map[string]bool),
		lastNames: make(map[string]bool),
	}

	if err := s.w.Write([]string{"time", "name", "value"}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenAppend reopens an existing store for appending, loading its time
// index so Exists and the ordering checks see prior content. It holds
// the exclusive writer lock until Close.
func OpenAppend(dir string) (*Store, error) {
	if err := acquireLock(dir); err != nil {
		return nil, err
	}

	s, err := load(dir)
	if err != nil {
		releaseLock(dir)
		return nil, err
	}
	s.locked = true

	f, err := os.OpenFile(filepath.Join(dir, seriesFile), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		releaseLock(dir)
		return nil, err
	}
	s.f = f
	s.w = csv.NewWriter(f)
	s.writable = true
	return s, nil
}

// OpenRead opens a store for reading only. No lock is taken.
func OpenRead(dir string) (*Store, error) {
	return load(dir)
}

func load(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing store metadata in %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		meta:      meta,
		times:     make(map[float64]bool),
		varSet:    make(map[string]bool),
		lastNames: make(map[string]bool),
	}

	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if !s.times[r.t] {
			s.times[r.t] = true
			s.meta.Count = len(s.times)
		}
		s.varSet[r.name] = true
		if !s.hasLast || r.t > s.lastTime {
			s.lastTime = r.t
			s.hasLast = true
			s.lastNames = map[string]bool{r.name: true}
		} else if r.t == s.lastTime {
			s.lastNames[r.name] = true
		}
	}
	return s, nil
}

// Exists reports whether any value is recorded at time t.
func (s *Store) Exists(t float64) bool {
	return s.times[t]
}

// Append records one (time, name, value) triple. Times must arrive in
// non-decreasing order; within one time group each name may appear
// once. Anything else is a batch.ErrStoreOrderingViolation.
func (s *Store) Append(t float64, name string, v float64) error {
	if !s.writable {
		return fmt.Errorf("store %s not open for writing", s.dir)
	}

	if s.hasLast {
		if t < s.lastTime {
			return fmt.Errorf("time %g before last %g: %w", t, s.lastTime, batch.ErrStoreOrderingViolation)
		}
		if t == s.lastTime {
			if s.lastNames[name] {
				return fmt.Errorf("duplicate %s at time %g: %w", name, t, batch.ErrStoreOrderingViolation)
			}
		} else if s.times[t] {
			return fmt.Errorf("time %g already present: %w", t, batch.ErrStoreOrderingViolation)
		}
	}

	row := []string{
		strconv.FormatFloat(t, 'g', -1, 64),
		name,
		strconv.FormatFloat(v, 'g', -1, 64),
	}
	if err := s.w.Write(row); err != nil {
		return err
	}

	if !s.hasLast || t > s.lastTime {
		s.lastTime = t
		s.hasLast = true
		s.lastNames = map[string]bool{name: true}
		s.times[t] = true
		s.meta.Count = len(s.times)
	} else {
		s.lastNames[name] = true
	}
	s.varSet[name] = true
	return nil
}

// Close flushes data and metadata and releases the writer lock.
func (s *Store) Close() error {
	var firstErr error

	if s.writable {
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			firstErr = err
		}
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.writable = false

		s.meta.Updated = time.Now()
		s.meta.LastTime = s.lastTime
		s.meta.Variables = s.variables()
		if err := s.writeMeta(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.locked {
		releaseLock(s.dir)
		s.locked = false
	}
	return firstErr
}

func (s *Store) Meta() Metadata { return s.meta }

func (s *Store) variables() []string {
	names := make([]string, 0, len(s.varSet))
	for name := range s.varSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Times returns all recorded times, ascending.
func (s *Store) Times() []float64 {
	ts := make([]float64, 0, len(s.times))
	for t := range s.times {
		ts = append(ts, t)
	}
	sort.Float64s(ts)
	return ts
}

// Series returns the (times, values) sequence of one variable.
func (s *Store) Series(name string) ([]float64, []float64, error) {
	rows, err := s.readRows()
	if err != nil {
		return nil, nil, err
	}
	var ts, vs []float64
	for _, r := range rows {
		if r.name == name {
			ts = append(ts, r.t)
			vs = append(vs, r.v)
		}
	}
	return ts, vs, nil
}

type row struct {
	t    float64
	name string
	v    float64
}

func (s *Store) readRows() ([]row, error) {
	f, err := os.Open(filepath.Join(s.dir, seriesFile))
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
		return nil, fmt.Errorf("parsing series in %s: %w", s.dir, err)
	}

	rows := make([]row, 0, len(records))
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) != 3 {
			continue
		}
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		rows = append(rows, row{t: t, name: rec[1], v: v})
	}
	return rows, nil
}

func (s *Store) writeMeta() error {
	f, err := os.Create(filepath.Join(s.dir, metaFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s.meta)
}

func acquireLock(dir string) error {
	f, err := os.OpenFile(filepath.Join(dir, lockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", dir, batch.ErrStoreBusy)
		}
		return err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f.Close()
}

func releaseLock(dir string) {
	os.Remove(filepath.Join(dir, lockFile))
}

// List collects metadata for every store under baseDir.
func List(baseDir string) ([]Metadata, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Metadata{}, nil
		}
		return nil, err
	}

	stores := make([]Metadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(baseDir, entry.Name(), metaFile))
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		stores = append(stores, meta)
	}
	return stores, nil
}
