package registry

import (
	"errors"
	"testing"

	"github.com/san-kum/postsim/internal/batch"
)

func TestDefaultOperations(t *testing.T) {
	r := Default()

	for _, name := range []string{"totals", "extrema", "rms", "drift"} {
		op, err := r.Get(name)
		if err != nil {
			t.Fatalf("get %s failed: %v", name, err)
		}
		if op.Kind != Analysis {
			t.Errorf("%s: expected analysis kind", name)
		}
		if op.Fn == nil {
			t.Errorf("%s: nil work function", name)
		}
	}

	for _, name := range []string{"frame", "ascii", "svg"} {
		op, err := r.Get(name)
		if err != nil {
			t.Fatalf("get %s failed: %v", name, err)
		}
		if op.Kind != Render {
			t.Errorf("%s: expected render kind", name)
		}
		if op.Artifact == nil {
			t.Errorf("%s: render op must define an artifact path", name)
		}
	}
}

func TestUnknownOperation(t *testing.T) {
	r := Default()

	_, err := r.Get("does-not-exist")
	if !errors.Is(err, batch.ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestListSorted(t *testing.T) {
	r := Default()

	ops := r.List()
	if len(ops) != 7 {
		t.Fatalf("expected 7 built-in ops, got %d", len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if ops[i-1].Name >= ops[i].Name {
			t.Errorf("list not sorted at %d: %s >= %s", i, ops[i-1].Name, ops[i].Name)
		}
	}
}
