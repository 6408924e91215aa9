package progress

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/dispatch"
	"github.com/san-kum/postsim/internal/report"
)

func TestUpdateCountsEvents(t *testing.T) {
	m := New("m1", "totals", 3, nil)

	next, _ := m.Update(eventMsg(dispatch.Event{Item: batch.WorkItem{Time: 0}, Status: report.OK}))
	next, _ = next.Update(eventMsg(dispatch.Event{Item: batch.WorkItem{Time: 10}, Status: report.Skipped}))
	next, _ = next.Update(eventMsg(dispatch.Event{Item: batch.WorkItem{Time: 20}, Status: report.Failed}))

	got := next.(Model)
	if got.ok != 1 || got.skipped != 1 || got.failed != 1 {
		t.Errorf("counts wrong: ok=%d skipped=%d failed=%d", got.ok, got.skipped, got.failed)
	}
	if got.resolved() != 3 {
		t.Errorf("expected 3 resolved, got %d", got.resolved())
	}
}

func TestViewShowsProgress(t *testing.T) {
	m := New("blast2d", "rms", 4, nil)
	next, _ := m.Update(eventMsg(dispatch.Event{Item: batch.WorkItem{Time: 0}, Status: report.OK}))

	view := next.(Model).View()
	if !strings.Contains(view, "blast2d") {
		t.Error("view missing model name")
	}
	if !strings.Contains(view, "1/4") {
		t.Error("view missing progress counter")
	}
}

func TestQuitDrainsRemainingEvents(t *testing.T) {
	ch := make(chan dispatch.Event, 2)
	m := New("m1", "totals", 50, ch)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}

	// A producer still sending past the buffer must not block once the
	// view has quit.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			ch <- dispatch.Event{Item: batch.WorkItem{Time: float64(i)}, Status: report.OK}
		}
		close(ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked after quit")
	}
}

func TestClosedChannelQuits(t *testing.T) {
	ch := make(chan dispatch.Event)
	close(ch)

	m := New("m1", "totals", 0, ch)
	msg := waitForEvent(ch)()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("expected doneMsg on closed channel, got %T", msg)
	}
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}
