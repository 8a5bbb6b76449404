// Package optim searches the physics parameters of a mesh for the values
// that minimize a metric, such as how long a tap takes to settle.
package optim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/sim"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Objective is what every candidate runs and the metric it is scored by.
type Objective struct {
	Ticks      int
	Dt         float64
	Source     sim.EventSource
	Metrics    func() []dynamo.Metric
	MetricName string
	// Score maps a metric value to the value minimized. Nil keeps it as is.
	Score func(v float64) float64
}

// Combinations lists every point of the grid, first parameter outermost.
func (g *GridSearch) Combinations() []map[string]float64 {
	var out []map[string]float64
	g.combine(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) combine(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val
		g.combine(depth+1, newParams, out)
	}
}

// Search runs every valid combination as one ensemble and returns the one
// with the lowest metric. Combinations that fail parameter validation are
// skipped. Members run without state validation, and a diverged member
// scores +Inf.
func (g *GridSearch) Search(ctx context.Context, base sim.Config, opts []sim.Option, obj Objective) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("%d parameters for %d ranges: %w",
			len(g.paramNames), len(g.ranges), dynamo.ErrParameterBounds)
	}

	var candidates []map[string]float64
	var members []sim.Member
	for _, combo := range g.Combinations() {
		p := base.Params
		var err error
		for _, name := range g.paramNames {
			if p, err = p.With(name, combo[name]); err != nil {
				return nil, 0, err
			}
		}
		if err := p.Validate(); err != nil {
			slog.Debug("skipping candidate", "params", combo, "error", err)
			continue
		}
		cfg := base
		cfg.Params = p
		cfg.ValidateState = false
		candidates = append(candidates, combo)
		members = append(members, sim.Member{Config: cfg, Source: obj.Source, Metrics: obj.Metrics})
	}
	if len(members) == 0 {
		return nil, 0, fmt.Errorf("no valid candidates: %w", dynamo.ErrParameterBounds)
	}

	slog.Info("running grid search", "candidates", len(members), "metric", obj.MetricName)
	results, err := sim.NewEnsemble(members, opts...).Run(ctx, obj.Ticks, obj.Dt)
	if err != nil {
		return nil, 0, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for i, r := range results {
		val, ok := r.Metrics[obj.MetricName]
		if !ok {
			return nil, 0, fmt.Errorf("metric %q was not recorded", obj.MetricName)
		}
		if obj.Score != nil {
			val = obj.Score(val)
		}
		if math.IsNaN(val) {
			val = math.Inf(1)
		}
		if bestParams == nil || val < best {
			best = val
			bestParams = candidates[i]
		}
	}
	return bestParams, best, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n < 1:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// ParseRange reads "name=min:max:steps", or "name=value" for one point.
func ParseRange(s string) (string, []float64, error) {
	name, bounds, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("range %q: want name=min:max:steps", s)
	}
	parts := strings.Split(bounds, ":")
	nums := make([]float64, 0, 2)
	for _, part := range parts[:min(len(parts), 2)] {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return "", nil, fmt.Errorf("range %q: %w", s, err)
		}
		nums = append(nums, v)
	}
	switch len(parts) {
	case 1:
		return name, nums, nil
	case 3:
		steps, err := strconv.Atoi(parts[2])
		if err != nil || steps < 1 {
			return "", nil, fmt.Errorf("range %q: bad step count", s)
		}
		return name, Linspace(nums[0], nums[1], steps), nil
	default:
		return "", nil, fmt.Errorf("range %q: want name=min:max:steps", s)
	}
}
