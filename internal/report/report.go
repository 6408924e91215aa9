// Package report aggregates per-item outcomes into the batch summary
// printed at the end of a run and maps failures onto the process exit
// code.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/san-kum/postsim/internal/batch"
)

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

type Status int

const (
	OK Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "ok"
	}
}

func (s Status) styled() string {
	switch s {
	case Skipped:
		return yellow.Render("skipped")
	case Failed:
		return red.Render("failed")
	default:
		return green.Render("ok")
	}
}

// ItemReport records the fate of one work item.
type ItemReport struct {
	Item   batch.WorkItem
	Status Status
	Err    error
}

// ModelReport collects the item outcomes for one model.
type ModelReport struct {
	Model     string
	Operation string
	Items     []ItemReport
	Elapsed   time.Duration
}

func (m *ModelReport) Add(item batch.WorkItem, status Status, err error) {
	m.Items = append(m.Items, ItemReport{Item: item, Status: status, Err: err})
}

func (m *ModelReport) Count(s Status) int {
	n := 0
	for _, it := range m.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

func (m *ModelReport) Failed() bool { return m.Count(Failed) > 0 }

// BatchReport is the run-level summary across all models.
type BatchReport struct {
	ID      uuid.UUID
	Started time.Time
	Models  []*ModelReport
}

func NewBatchReport() *BatchReport {
	return &BatchReport{ID: uuid.New(), Started: time.Now()}
}

func (b *BatchReport) Add(m *ModelReport) {
	b.Models = append(b.Models, m)
}

func (b *BatchReport) Failed() bool {
	for _, m := range b.Models {
		if m.Failed() {
			return true
		}
	}
	return false
}

// ExitCode maps the batch outcome onto the process exit code: zero on a
// clean run, otherwise the code of the first item failure that carried
// one, otherwise one.
func (b *BatchReport) ExitCode() int {
	code := 0
	for _, m := range b.Models {
		for _, it := range m.Items {
			if it.Status != Failed {
				continue
			}
			if c := batch.ExitCode(it.Err, 0); c != 0 {
				return c
			}
			code = 1
		}
	}
	return code
}

// Render writes the human-readable batch summary.
func (b *BatchReport) Render(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", bold.Render("batch"), dim.Render(b.ID.String()))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		dim.Render("model"), dim.Render("op"), dim.Render("items"),
		dim.Render("ok"), dim.Render("skipped"), dim.Render("failed"), dim.Render("elapsed"))
	for _, m := range b.Models {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			m.Model, m.Operation, len(m.Items),
			m.Count(OK), m.Count(Skipped), m.Count(Failed),
			m.Elapsed.Round(time.Millisecond))
	}
	tw.Flush()

	for _, m := range b.Models {
		if !m.Failed() {
			continue
		}
		fmt.Fprintf(w, "\n%s %s\n", bold.Render(m.Model), Failed.styled())
		items := make([]ItemReport, len(m.Items))
		copy(items, m.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].Item.Time < items[j].Item.Time })
		for _, it := range items {
			if it.Status != Failed {
				continue
			}
			fmt.Fprintf(w, "  t=%g %s: %v\n", it.Item.Time, dim.Render(it.Item.Path), it.Err)
		}
	}
}
