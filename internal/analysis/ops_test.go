package analysis

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/dump"
)

func writeDump(t *testing.T, dir string) batch.WorkItem {
	t.Helper()
	d := &dump.Dump{
		Cycle: 10,
		Time:  1.0,
		Fields: map[string][]float64{
			"rho": {1, 2, 3, 4},
			"vel": {-2, 2},
		},
	}
	path := filepath.Join(dir, "dump_000010.json")
	if err := dump.Write(path, d); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return batch.WorkItem{Path: path, Time: 1.0, Cycle: 10}
}

func TestTotals(t *testing.T) {
	item := writeDump(t, t.TempDir())

	res, err := Totals(item, &batch.Context{})
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}

	if res.Time != 1.0 || res.Cycle != 10 {
		t.Errorf("result tag wrong: t=%f c=%d", res.Time, res.Cycle)
	}
	if res.Values["rho_total"] != 10 {
		t.Errorf("expected rho_total 10, got %f", res.Values["rho_total"])
	}
	if res.Values["vel_total"] != 0 {
		t.Errorf("expected vel_total 0, got %f", res.Values["vel_total"])
	}
}

func TestExtrema(t *testing.T) {
	item := writeDump(t, t.TempDir())

	res, err := Extrema(item, &batch.Context{})
	if err != nil {
		t.Fatalf("extrema failed: %v", err)
	}
	if res.Values["rho_min"] != 1 || res.Values["rho_max"] != 4 {
		t.Errorf("rho extrema wrong: %v", res.Values)
	}
	if res.Values["vel_min"] != -2 || res.Values["vel_max"] != 2 {
		t.Errorf("vel extrema wrong: %v", res.Values)
	}
}

func TestRMS(t *testing.T) {
	item := writeDump(t, t.TempDir())

	res, err := RMS(item, &batch.Context{})
	if err != nil {
		t.Fatalf("rms failed: %v", err)
	}
	want := math.Sqrt((1 + 4 + 9 + 16) / 4.0)
	if math.Abs(res.Values["rho_rms"]-want) > 1e-12 {
		t.Errorf("expected rho_rms %f, got %f", want, res.Values["rho_rms"])
	}
}

func TestDriftWithDiagnostics(t *testing.T) {
	item := writeDump(t, t.TempDir())

	wctx := &batch.Context{
		Diagnostics: &batch.Diagnostics{
			Times:  []float64{0, 2},
			Series: map[string][]float64{"rho": {2.0, 2.0}},
		},
	}

	res, err := Drift(item, wctx)
	if err != nil {
		t.Fatalf("drift failed: %v", err)
	}
	// rho mean is 2.5, reference is 2.0
	if math.Abs(res.Values["rho_drift"]-0.5) > 1e-12 {
		t.Errorf("expected rho_drift 0.5, got %f", res.Values["rho_drift"])
	}
	if _, ok := res.Values["vel_drift"]; ok {
		t.Error("vel has no diagnostics series, drift should be absent")
	}
	if res.Values["vel_mean"] != 0 {
		t.Errorf("expected vel_mean 0, got %f", res.Values["vel_mean"])
	}
}

func TestDriftWithoutDiagnostics(t *testing.T) {
	item := writeDump(t, t.TempDir())

	res, err := Drift(item, &batch.Context{})
	if err != nil {
		t.Fatalf("drift failed: %v", err)
	}
	if _, ok := res.Values["rho_drift"]; ok {
		t.Error("no diagnostics present, drift should be absent")
	}
	if math.Abs(res.Values["rho_mean"]-2.5) > 1e-12 {
		t.Errorf("expected rho_mean 2.5, got %f", res.Values["rho_mean"])
	}
}
