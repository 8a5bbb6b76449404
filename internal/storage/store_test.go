package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/metrics"
)

func testRun(name string) *Run {
	rec := NewFrameRecorder(2)
	for tick := 1; tick <= 4; tick++ {
		rec.OnTick(dynamo.Frame{
			Tick:      tick,
			Time:      float64(tick) * 0.1,
			Positions: []dynamo.Vec3{{X: -0.5, Z: -float64(tick)}, {X: 0.5}},
		})
	}
	return &Run{
		Meta: RunMetadata{
			Name:    name,
			Seed:    42,
			Dt:      0.1,
			Ticks:   4,
			Width:   2,
			Height:  1,
			Params:  dynamo.DefaultParams().GetParams(),
			Metrics: map[string]float64{"kinetic_energy": 1.5},
		},
		Frames: rec.Rows(),
		Series: []metrics.Sample{
			{Tick: 1, Time: 0.1, Kinetic: 2, Speed: 3, Displacement: 0.5},
			{Tick: 2, Time: 0.2, Kinetic: 1, Speed: 1.5, Displacement: 0.75},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun("calm"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if meta.ID != runID || meta.Name != "calm" {
		t.Errorf("unexpected identity: %s / %s", meta.ID, meta.Name)
	}
	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.Metrics["kinetic_energy"] != 1.5 {
		t.Errorf("expected energy 1.5, got %f", meta.Metrics["kinetic_energy"])
	}
	if meta.Params["stiffness"] != dynamo.DefaultParams().Stiffness {
		t.Errorf("expected stiffness param, got %v", meta.Params)
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if len(series) != 2 || series[1].Displacement != 0.75 {
		t.Errorf("unexpected series: %+v", series)
	}

	frames, err := st.LoadFrames(runID)
	if err != nil {
		t.Fatalf("load frames failed: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 rows (2 frames x 2 vertices), got %d", len(frames))
	}
	if frames[0].Tick != 2 || frames[0].Z != -2 {
		t.Errorf("unexpected first row: %+v", frames[0])
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save(testRun("a")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := st.Save(testRun("b")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Name != "a" || runs[1].Name != "b" {
		t.Errorf("expected runs in save order, got %s, %s", runs[0].Name, runs[1].Name)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	run := testRun("")
	run.Frames = nil
	runID, err := st.Save(run)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "frames.csv", "metrics.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	frames, err := st.LoadFrames(runID)
	if err != nil {
		t.Fatalf("load frames failed: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %d", len(frames))
	}
}

func TestGroupFrames(t *testing.T) {
	rows := []FrameRow{
		{Tick: 4, Index: 1, X: 1},
		{Tick: 2, Index: 0, Z: -1},
		{Tick: 2, Index: 1, X: 1},
		{Tick: 4, Index: 0, Z: -2},
	}
	ticks, frames := GroupFrames(rows)
	if len(ticks) != 2 || ticks[0] != 2 || ticks[1] != 4 {
		t.Fatalf("unexpected ticks: %v", ticks)
	}
	if frames[1][0].Z != -2 || frames[0][1].X != 1 {
		t.Errorf("unexpected frames: %v", frames)
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, testRun("calm")); err != nil {
		t.Fatal(err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(data.Series) != 2 {
		t.Errorf("expected 2 samples, got %d", len(data.Series))
	}
	if data.Summary["peak_energy"] != 2 {
		t.Errorf("expected peak energy 2, got %f", data.Summary["peak_energy"])
	}
}
