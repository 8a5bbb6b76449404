package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/meshsim/internal/config"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/sim"
)

// Scenario is a scripted sequence of taps on the mesh
type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Dt          float64            `yaml:"dt"`
	Ticks       int                `yaml:"ticks"`
	Params      map[string]float64 `yaml:"params"`
	Taps        []Tap              `yaml:"taps"`
}

// Tap presses one world-space point for Duration ticks starting at Tick.
type Tap struct {
	Tick     int     `yaml:"tick"`
	Duration int     `yaml:"duration"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Pressure float64 `yaml:"pressure"`
}

// Active reports whether the tap presses during tick. A zero duration
// lasts one tick.
func (t Tap) Active(tick int) bool {
	d := t.Duration
	if d < 1 {
		d = 1
	}
	return tick >= t.Tick && tick < t.Tick+d
}

func (t Tap) Event() forcefield.Event {
	return forcefield.Event{X: t.X, Y: t.Y, Pressure: t.Pressure}
}

// Events implements sim.EventSource.
func (s *Scenario) Events(tick int) []forcefield.Event {
	var events []forcefield.Event
	for _, t := range s.Taps {
		if t.Active(tick) {
			events = append(events, t.Event())
		}
	}
	return events
}

func (s *Scenario) Validate() error {
	if !(s.Dt > 0) {
		return fmt.Errorf("scenario %q: dt %v must be positive: %w", s.Name, s.Dt, dynamo.ErrParameterBounds)
	}
	if s.Ticks <= 0 {
		return fmt.Errorf("scenario %q: ticks %d must be positive: %w", s.Name, s.Ticks, dynamo.ErrParameterBounds)
	}
	for i, t := range s.Taps {
		if math.IsNaN(t.X) || math.IsNaN(t.Y) || math.IsNaN(t.Pressure) || t.Tick < 0 {
			return fmt.Errorf("scenario %q: tap %d is malformed: %w", s.Name, i, dynamo.ErrParameterBounds)
		}
	}
	return nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	return &scenario, nil
}

func SaveScenario(path string, scenario *Scenario) error {
	data, err := yaml.Marshal(scenario)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RandomTaps scatters n single-tick taps over a footprint of ex by ey
// world units during the first ticks ticks. A zero seed uses the clock.
func RandomTaps(seed int64, n, ticks int, ex, ey, maxPressure float64) []Tap {
	rng := rand.New(rand.NewSource(seed))
	if seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if ticks < 1 {
		ticks = 1
	}

	taps := make([]Tap, n)
	for i := range taps {
		taps[i] = Tap{
			Tick:     rng.Intn(ticks),
			Duration: 1 + rng.Intn(5),
			X:        (rng.Float64() - 0.5) * ex,
			Y:        (rng.Float64() - 0.5) * ey,
			Pressure: rng.Float64() * maxPressure,
		}
	}
	sort.SliceStable(taps, func(i, j int) bool { return taps[i].Tick < taps[j].Tick })
	return taps
}

// RunScenario applies the scenario's parameter overrides to s and runs it
// from the current state.
func RunScenario(ctx context.Context, s *sim.Simulation, scenario *Scenario, observers ...dynamo.Observer) (sim.Snapshot, error) {
	if err := scenario.Validate(); err != nil {
		return sim.Snapshot{}, err
	}

	names := make([]string, 0, len(scenario.Params))
	for k := range scenario.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := s.SetParam(k, scenario.Params[k]); err != nil {
			return sim.Snapshot{}, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
	}

	for _, o := range observers {
		s.AddObserver(o)
	}

	slog.Info("running scenario", "name", scenario.Name, "ticks", scenario.Ticks, "taps", len(scenario.Taps))
	return s.Run(ctx, scenario.Ticks, scenario.Dt, scenario)
}

// ParameterSweep runs the same taps across a range of one parameter
type ParameterSweep struct {
	ParamName       string
	ParamMin        float64
	ParamMax        float64
	NumSteps        int
	Ticks           int
	Dt              float64
	Taps            []Tap
	SettleThreshold float64
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue       float64
	PeakDisplacement float64
	PeakEnergy       float64
	SettleTime       float64
}

// RunSweep runs one simulation per parameter value concurrently, each
// built from base with the swept parameter replaced.
func RunSweep(ctx context.Context, base *config.Config, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step: %w", dynamo.ErrParameterBounds)
	}
	simCfg, opts, err := base.ToSim()
	if err != nil {
		return nil, err
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	source := &Scenario{Name: "sweep", Dt: sweep.Dt, Ticks: sweep.Ticks, Taps: sweep.Taps}
	values := make([]float64, sweep.NumSteps)
	members := make([]sim.Member, sweep.NumSteps)
	for i := range members {
		values[i] = sweep.ParamMin + float64(i)*paramStep
		p, err := simCfg.Params.With(sweep.ParamName, values[i])
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%.4f: %w", sweep.ParamName, values[i], err)
		}
		cfg := simCfg
		cfg.Params = p
		members[i] = sim.Member{
			Config: cfg,
			Source: source,
			Metrics: func() []dynamo.Metric {
				return []dynamo.Metric{
					metrics.NewDisplacement(),
					metrics.NewPeakEnergy(),
					metrics.NewSettleTime(sweep.SettleThreshold),
				}
			},
		}
	}

	slog.Info("running sweep", "param", sweep.ParamName, "steps", sweep.NumSteps, "ticks", sweep.Ticks)
	out, err := sim.NewEnsemble(members, opts...).Run(ctx, sweep.Ticks, sweep.Dt)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(out))
	for i, r := range out {
		results[i] = SweepResult{
			ParamValue:       values[i],
			PeakDisplacement: r.Metrics["max_displacement"],
			PeakEnergy:       r.Metrics["peak_energy"],
			SettleTime:       r.Metrics["settle_time"],
		}
	}
	return results, nil
}

// MonteCarloConfig defines Monte Carlo simulation parameters
type MonteCarloConfig struct {
	NumTrials    int
	TapsPerTrial int
	MaxPressure  float64
	Ticks        int
	Dt           float64
	Bound        float64
	Seed         int64
}

// MonteCarloResult holds the outcome of one randomly tapped trial
type MonteCarloResult struct {
	TrialID          int
	Taps             []Tap
	PeakDisplacement float64
	Stable           bool // every tick finite and within Bound
}

// RunMonteCarlo taps the mesh at random in every trial and checks that it
// stays bounded.
func RunMonteCarlo(ctx context.Context, base *config.Config, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	simCfg, opts, err := base.ToSim()
	if err != nil {
		return nil, err
	}
	simCfg.ValidateState = false

	ex := float64(simCfg.Tiles.Width()) * simCfg.Params.RestLength
	ey := float64(simCfg.Tiles.Height()) * simCfg.Params.RestLength

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	trials := make([][]Tap, cfg.NumTrials)
	members := make([]sim.Member, cfg.NumTrials)
	for trial := range members {
		trials[trial] = RandomTaps(seed+int64(trial), cfg.TapsPerTrial, cfg.Ticks, ex, ey, cfg.MaxPressure)
		members[trial] = sim.Member{
			Config: simCfg,
			Source: &Scenario{Taps: trials[trial]},
			Metrics: func() []dynamo.Metric {
				return []dynamo.Metric{metrics.NewDisplacement(), metrics.NewStability(cfg.Bound)}
			},
		}
	}

	slog.Info("running monte carlo", "trials", cfg.NumTrials, "taps", cfg.TapsPerTrial)
	out, err := sim.NewEnsemble(members, opts...).Run(ctx, cfg.Ticks, cfg.Dt)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(out))
	for i, r := range out {
		results[i] = MonteCarloResult{
			TrialID:          i,
			Taps:             trials[i],
			PeakDisplacement: r.Metrics["max_displacement"],
			Stable:           r.Metrics["stability"] == 1.0,
		}
	}
	return results, nil
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
