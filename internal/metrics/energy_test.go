package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/meshsim/internal/dynamo"
)

func frame(tick int, vel, pos []dynamo.Vec3) dynamo.Frame {
	p := dynamo.DefaultParams()
	p.Mass = 2
	return dynamo.Frame{Tick: tick, Time: float64(tick) * 0.1, Params: p, Velocities: vel, Positions: pos}
}

func TestKineticEnergy(t *testing.T) {
	vel := []dynamo.Vec3{{X: 3, Y: 4}, {Z: 1}}
	if got := KineticEnergy(vel, 2); math.Abs(got-26) > 1e-12 {
		t.Errorf("expected 26, got %f", got)
	}
	if got := TotalSpeed(vel); math.Abs(got-6) > 1e-12 {
		t.Errorf("expected total speed 6, got %f", got)
	}
}

func TestEnergyMetrics(t *testing.T) {
	e := NewEnergy()
	peak := NewPeakEnergy()

	e.Observe(frame(1, []dynamo.Vec3{{Z: 2}}, nil))
	peak.Observe(frame(1, []dynamo.Vec3{{Z: 2}}, nil))
	e.Observe(frame(2, []dynamo.Vec3{{Z: 1}}, nil))
	peak.Observe(frame(2, []dynamo.Vec3{{Z: 1}}, nil))

	if e.Value() != 1 {
		t.Errorf("expected latest energy 1, got %f", e.Value())
	}
	if peak.Value() != 4 {
		t.Errorf("expected peak energy 4, got %f", peak.Value())
	}

	e.Reset()
	peak.Reset()
	if e.Value() != 0 || peak.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestDisplacement(t *testing.T) {
	d := NewDisplacement()
	d.Observe(frame(1, nil, []dynamo.Vec3{{Z: -0.3}, {Z: 0.1}}))
	d.Observe(frame(2, nil, []dynamo.Vec3{{Z: -0.2}}))
	if d.Value() != 0.3 {
		t.Errorf("expected 0.3, got %f", d.Value())
	}
}

func TestSettleTime(t *testing.T) {
	s := NewSettleTime(0.5)
	moving := []dynamo.Vec3{{Z: 1}}
	still := []dynamo.Vec3{{Z: 0.1}}

	s.Observe(frame(1, moving, nil))
	if s.Value() != -1 {
		t.Errorf("expected -1 while moving, got %f", s.Value())
	}
	s.Observe(frame(2, still, nil))
	s.Observe(frame(3, still, nil))
	if math.Abs(s.Value()-0.2) > 1e-12 {
		t.Errorf("expected settle at 0.2, got %f", s.Value())
	}
	s.Observe(frame(4, moving, nil))
	if s.Value() != -1 {
		t.Errorf("expected -1 after disturbance, got %f", s.Value())
	}
}

func TestStability(t *testing.T) {
	s := NewStability(1.0)
	s.Observe(frame(1, nil, []dynamo.Vec3{{Z: 0.5}}))
	s.Observe(frame(2, nil, []dynamo.Vec3{{Z: math.NaN()}}))
	s.Observe(frame(3, nil, []dynamo.Vec3{{Z: -2}}))
	if math.Abs(s.Value()-1.0/3) > 1e-12 {
		t.Errorf("expected 1/3, got %f", s.Value())
	}
	if s.FirstBreach() != 2 {
		t.Errorf("expected first breach at tick 2, got %d", s.FirstBreach())
	}

	s.Reset()
	if s.Value() != 1 || s.FirstBreach() != -1 {
		t.Error("expected reset to clear breaches")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	for i := 1; i <= 3; i++ {
		r.OnTick(frame(i, []dynamo.Vec3{{Z: float64(i)}}, []dynamo.Vec3{{Z: -float64(i)}}))
	}

	samples := r.Samples()
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Tick != 2 {
		t.Errorf("expected oldest kept tick 2, got %d", samples[0].Tick)
	}

	sum := Summarize(samples)
	if sum.PeakEnergy != 9 || sum.FinalEnergy != 9 || sum.MeanEnergy != 6.5 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.PeakDisplacement != 3 {
		t.Errorf("expected peak displacement 3, got %f", sum.PeakDisplacement)
	}

	speeds := r.Series(SpeedColumn)
	if speeds[1] != 3 {
		t.Errorf("expected speed 3, got %f", speeds[1])
	}

	if (Summarize(nil) != Summary{}) {
		t.Error("expected empty summary for no samples")
	}
}
