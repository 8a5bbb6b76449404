package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/meshsim/internal/config"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/sim"
)

const pressYAML = `name: press
description: hold the centre down, then let go
dt: 0.1
ticks: 20
params:
  stiffness: 12
taps:
  - {tick: 0, duration: 5, x: -0.5, y: -0.5, pressure: 1}
  - {tick: 8, x: 0.5, y: 0.5, pressure: 0.5}
`

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, pressYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if sc.Name != "press" || sc.Ticks != 20 || len(sc.Taps) != 2 {
		t.Errorf("unexpected scenario: %+v", sc)
	}
	if sc.Params["stiffness"] != 12 {
		t.Errorf("expected stiffness override, got %v", sc.Params)
	}
}

func TestLoadScenarioInvalid(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "name: broken\ndt: 0\nticks: 10\n"))
	if !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestScenarioEvents(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, pressYAML))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tick int
		want int
	}{
		{0, 1}, {4, 1}, {5, 0}, {8, 1}, {9, 0},
	}
	for _, tt := range tests {
		if got := len(sc.Events(tt.tick)); got != tt.want {
			t.Errorf("tick %d: expected %d events, got %d", tt.tick, tt.want, got)
		}
	}
}

func TestSaveScenarioRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	sc := &Scenario{Name: "rt", Dt: 0.016, Ticks: 10, Taps: []Tap{{Tick: 2, Duration: 3, X: 1, Pressure: 0.25}}}
	if err := SaveScenario(path, sc); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Taps[0] != sc.Taps[0] {
		t.Errorf("expected %+v, got %+v", sc.Taps[0], loaded.Taps[0])
	}
}

func TestRandomTaps(t *testing.T) {
	a := RandomTaps(7, 20, 100, 4, 2, 0.8)
	b := RandomTaps(7, 20, 100, 4, 2, 0.8)
	if len(a) != 20 {
		t.Fatalf("expected 20 taps, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different taps at %d", i)
		}
		if a[i].X < -2 || a[i].X >= 2 || a[i].Y < -1 || a[i].Y >= 1 {
			t.Errorf("tap %d outside footprint: %+v", i, a[i])
		}
		if a[i].Pressure < 0 || a[i].Pressure > 0.8 {
			t.Errorf("tap %d pressure out of range: %f", i, a[i].Pressure)
		}
		if i > 0 && a[i].Tick < a[i-1].Tick {
			t.Error("taps not ordered by tick")
		}
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, pressYAML))
	if err != nil {
		t.Fatal(err)
	}
	simCfg, opts, err := config.GetPreset("tiny").ToSim()
	if err != nil {
		t.Fatal(err)
	}
	s, err := sim.New(simCfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	rec := metrics.NewRecorder(0)
	snap, err := RunScenario(context.Background(), s, sc, rec)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if snap.Tick != 20 {
		t.Errorf("expected 20 ticks, got %d", snap.Tick)
	}
	if s.Params().Stiffness != 12 {
		t.Errorf("expected stiffness override applied, got %f", s.Params().Stiffness)
	}
	if len(rec.Samples()) != 20 {
		t.Errorf("expected 20 samples, got %d", len(rec.Samples()))
	}
	if metrics.Summarize(rec.Samples()).PeakDisplacement <= 0 {
		t.Error("expected the taps to dent the mesh")
	}
}

func TestRunScenarioBadParam(t *testing.T) {
	simCfg, opts, err := config.GetPreset("tiny").ToSim()
	if err != nil {
		t.Fatal(err)
	}
	s, err := sim.New(simCfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	sc := &Scenario{Name: "bad", Dt: 0.1, Ticks: 1, Params: map[string]float64{"gravity": 9.8}}
	if _, err := RunScenario(context.Background(), s, sc); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestRunSweep(t *testing.T) {
	sweep := &ParameterSweep{
		ParamName:       "stiffness",
		ParamMin:        5,
		ParamMax:        25,
		NumSteps:        3,
		Ticks:           30,
		Dt:              0.1,
		Taps:            []Tap{{Tick: 0, Duration: 3, X: -0.5, Y: -0.5, Pressure: 1}},
		SettleThreshold: 1e-3,
	}

	results, err := RunSweep(context.Background(), config.GetPreset("tiny"), sweep)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	want := []float64{5, 15, 25}
	for i, r := range results {
		if r.ParamValue != want[i] {
			t.Errorf("step %d: expected value %f, got %f", i, want[i], r.ParamValue)
		}
		if r.PeakDisplacement <= 0 || r.PeakEnergy <= 0 {
			t.Errorf("step %d: expected motion, got %+v", i, r)
		}
	}
}

func TestRunSweepInvalidValue(t *testing.T) {
	sweep := &ParameterSweep{ParamName: "damping", ParamMin: 0.5, ParamMax: 1.5, NumSteps: 3, Ticks: 1, Dt: 0.1}
	_, err := RunSweep(context.Background(), config.GetPreset("tiny"), sweep)
	if !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestRunMonteCarlo(t *testing.T) {
	cfg := &MonteCarloConfig{
		NumTrials:    4,
		TapsPerTrial: 5,
		MaxPressure:  1,
		Ticks:        20,
		Dt:           0.1,
		Bound:        100,
		Seed:         3,
	}

	results, err := RunMonteCarlo(context.Background(), config.GetPreset("tiny"), cfg)
	if err != nil {
		t.Fatalf("monte carlo failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	stable, unstable := MonteCarloStats(results)
	if stable+unstable != 4 {
		t.Errorf("stats do not add up: %d + %d", stable, unstable)
	}
	if unstable != 0 {
		t.Errorf("expected a damped mesh to stay bounded, got %d unstable", unstable)
	}
}
