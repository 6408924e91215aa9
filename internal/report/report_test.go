package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/postsim/internal/batch"
)

func TestExitCodeCleanRun(t *testing.T) {
	b := NewBatchReport()
	m := &ModelReport{Model: "m1", Operation: "totals"}
	m.Add(batch.WorkItem{Time: 0}, OK, nil)
	m.Add(batch.WorkItem{Time: 10}, Skipped, nil)
	b.Add(m)

	if b.Failed() {
		t.Error("clean run should not be failed")
	}
	if code := b.ExitCode(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestExitCodeFirstItemCodeWins(t *testing.T) {
	b := NewBatchReport()
	m := &ModelReport{Model: "m1", Operation: "totals"}
	m.Add(batch.WorkItem{Time: 0}, Failed, errors.New("plain failure"))
	m.Add(batch.WorkItem{Time: 10}, Failed, &batch.ItemError{Code: 9, Reason: "first with code"})
	m.Add(batch.WorkItem{Time: 20}, Failed, &batch.ItemError{Code: 4, Reason: "second with code"})
	b.Add(m)

	if code := b.ExitCode(); code != 9 {
		t.Errorf("expected exit code 9, got %d", code)
	}
}

func TestExitCodePlainFailure(t *testing.T) {
	b := NewBatchReport()
	m := &ModelReport{Model: "m1", Operation: "totals"}
	m.Add(batch.WorkItem{Time: 0}, Failed, errors.New("no code"))
	b.Add(m)

	if code := b.ExitCode(); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestCounts(t *testing.T) {
	m := &ModelReport{Model: "m1"}
	m.Add(batch.WorkItem{Time: 0}, OK, nil)
	m.Add(batch.WorkItem{Time: 10}, OK, nil)
	m.Add(batch.WorkItem{Time: 20}, Skipped, nil)
	m.Add(batch.WorkItem{Time: 30}, Failed, errors.New("x"))

	if m.Count(OK) != 2 || m.Count(Skipped) != 1 || m.Count(Failed) != 1 {
		t.Errorf("counts wrong: ok=%d skipped=%d failed=%d",
			m.Count(OK), m.Count(Skipped), m.Count(Failed))
	}
}

func TestRenderListsFailures(t *testing.T) {
	b := NewBatchReport()
	m := &ModelReport{Model: "blast2d", Operation: "rms"}
	m.Add(batch.WorkItem{Time: 0, Path: "dump_000000.json"}, OK, nil)
	m.Add(batch.WorkItem{Time: 20, Path: "dump_000002.json"}, Failed, errors.New("corrupt dump"))
	b.Add(m)

	var buf bytes.Buffer
	b.Render(&buf)
	out := buf.String()

	if !strings.Contains(out, "blast2d") {
		t.Error("summary missing model name")
	}
	if !strings.Contains(out, "corrupt dump") {
		t.Error("summary missing failure reason")
	}
	if !strings.Contains(out, "t=20") {
		t.Error("summary missing failed item time")
	}
}
