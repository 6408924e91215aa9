// Package merge turns the unordered stream of per-item results into the
// final batch artifact: a pass/fail tally for render batches, or a
// strictly time-ordered summary store for analysis batches.
package merge

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/san-kum/postsim/internal/batch"
)

// Appender is the single-writer summary store surface the merger needs.
type Appender interface {
	Append(t float64, name string, v float64) error
}

// Merger consumes results in arbitrary completion order. Discard
// resolves an item that will never produce a result (failed or
// skipped), which lets later times flush past it.
type Merger interface {
	Offer(res *batch.PartialResult) error
	Discard(t float64) error
	Close() error
}

// Tally is the render-batch merger: frames are already persisted side
// effects, so only the accounting remains.
type Tally struct {
	Completed int
	Discarded int
}

func NewTally() *Tally { return &Tally{} }

func (t *Tally) Offer(res *batch.PartialResult) error {
	t.Completed++
	return nil
}

func (t *Tally) Discard(float64) error {
	t.Discarded++
	return nil
}

func (t *Tally) Close() error { return nil }

// StoreMerger buffers out-of-order results in a min-heap and flushes a
// result to the store exactly when no unresolved item with a smaller
// time remains. Memory stays bounded by completion skew, not by series
// length.
type StoreMerger struct {
	dst       Appender
	frontier  []float64
	idx       int
	discarded map[float64]int
	buf       resultHeap
	highWater int
}

// NewStoreMerger expects the times of every item the batch will
// resolve, in any order.
func NewStoreMerger(dst Appender, times []float64) *StoreMerger {
	frontier := make([]float64, len(times))
	copy(frontier, times)
	sort.Float64s(frontier)

	return &StoreMerger{
		dst:       dst,
		frontier:  frontier,
		discarded: make(map[float64]int),
	}
}

func (m *StoreMerger) Offer(res *batch.PartialResult) error {
	heap.Push(&m.buf, res)
	if len(m.buf) > m.highWater {
		m.highWater = len(m.buf)
	}
	return m.flush()
}

func (m *StoreMerger) Discard(t float64) error {
	m.discarded[t]++
	return m.flush()
}

func (m *StoreMerger) flush() error {
	for m.idx < len(m.frontier) {
		t := m.frontier[m.idx]
		// Each discard resolves one frontier slot, so items sharing a
		// time are accounted for independently.
		if m.discarded[t] > 0 {
			m.discarded[t]--
			m.idx++
			continue
		}
		if len(m.buf) == 0 || m.buf[0].Time != t {
			return nil
		}
		res := heap.Pop(&m.buf).(*batch.PartialResult)
		if err := m.write(res); err != nil {
			return err
		}
		m.idx++
	}
	return nil
}

func (m *StoreMerger) write(res *batch.PartialResult) error {
	names := make([]string, 0, len(res.Values))
	for name := range res.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := m.dst.Append(res.Time, name, res.Values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Close verifies every expected item was resolved and nothing is left
// buffered.
func (m *StoreMerger) Close() error {
	if err := m.flush(); err != nil {
		return err
	}
	if len(m.buf) > 0 {
		return fmt.Errorf("%d merged results unflushed (time not among expected items)", len(m.buf))
	}
	if m.idx < len(m.frontier) {
		return fmt.Errorf("%d expected items never resolved", len(m.frontier)-m.idx)
	}
	return nil
}

// HighWater reports the largest number of results buffered at once.
func (m *StoreMerger) HighWater() int { return m.highWater }

type resultHeap []*batch.PartialResult

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Time < h[j].Time }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(*batch.PartialResult)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
