package metrics

import (
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// Sample is one row of a recorded run.
type Sample struct {
	Tick         int     `csv:"tick" json:"tick"`
	Time         float64 `csv:"time" json:"time"`
	Kinetic      float64 `csv:"kinetic_energy" json:"kinetic_energy"`
	Speed        float64 `csv:"total_speed" json:"total_speed"`
	Displacement float64 `csv:"max_displacement" json:"max_displacement"`
}

// Recorder is an observer that keeps a per-tick time series, optionally
// capped to the most recent entries.
type Recorder struct {
	capacity int
	samples  []Sample
}

func NewRecorder(capacity int) *Recorder {
	return &Recorder{capacity: capacity}
}

func (r *Recorder) OnTick(f dynamo.Frame) {
	r.samples = append(r.samples, Sample{
		Tick:         f.Tick,
		Time:         f.Time,
		Kinetic:      KineticEnergy(f.Velocities, f.Params.Mass),
		Speed:        TotalSpeed(f.Velocities),
		Displacement: MaxDepth(f.Positions),
	})
	if r.capacity > 0 && len(r.samples) > r.capacity {
		r.samples = r.samples[len(r.samples)-r.capacity:]
	}
}

func (r *Recorder) Samples() []Sample { return r.samples }

func (r *Recorder) Reset() { r.samples = r.samples[:0] }

// Series extracts one column of the recording.
func (r *Recorder) Series(column func(Sample) float64) []float64 {
	out := make([]float64, len(r.samples))
	for i, s := range r.samples {
		out[i] = column(s)
	}
	return out
}

func KineticColumn(s Sample) float64      { return s.Kinetic }
func SpeedColumn(s Sample) float64        { return s.Speed }
func DisplacementColumn(s Sample) float64 { return s.Displacement }

// Summary aggregates a recording.
type Summary struct {
	PeakEnergy       float64
	MeanEnergy       float64
	FinalEnergy      float64
	PeakDisplacement float64
}

func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	energy := make([]float64, len(samples))
	disp := make([]float64, len(samples))
	for i, s := range samples {
		energy[i] = s.Kinetic
		disp[i] = s.Displacement
	}
	return Summary{
		PeakEnergy:       floats.Max(energy),
		MeanEnergy:       floats.Sum(energy) / float64(len(energy)),
		FinalEnergy:      energy[len(energy)-1],
		PeakDisplacement: floats.Max(disp),
	}
}

// AsMap flattens a summary for run metadata.
func (s Summary) AsMap() map[string]float64 {
	return map[string]float64{
		"peak_energy":       s.PeakEnergy,
		"mean_energy":       s.MeanEnergy,
		"final_energy":      s.FinalEnergy,
		"peak_displacement": s.PeakDisplacement,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("peak_energy", s.PeakEnergy),
		slog.Float64("mean_energy", s.MeanEnergy),
		slog.Float64("final_energy", s.FinalEnergy),
		slog.Float64("peak_displacement", s.PeakDisplacement),
	)
}
