// Package sim owns the vertex buffers of a spring mesh and drives one
// tick at a time: assemble external forces, run the velocity pass, run the
// position pass, publish a snapshot.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/san-kum/meshsim/internal/compute"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
	"github.com/san-kum/meshsim/internal/integrators"
	"github.com/san-kum/meshsim/internal/mesh"
)

type Config struct {
	Tiles         dynamo.TileConfig
	Params        dynamo.Params
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Tiles:         dynamo.DefaultTiles(),
		Params:        dynamo.DefaultParams(),
		ValidateState: true,
	}
}

type Option func(*Simulation)

// WithBackend sets the dispatch backend. The default is the CPU backend.
func WithBackend(b compute.Backend) Option {
	return func(s *Simulation) { s.backend = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// Snapshot is an immutable copy of the positions after a tick, indexed by
// the grid's linear index.
type Snapshot struct {
	Tick      int
	Time      float64
	Width     int
	Height    int
	Positions []dynamo.Vec3
}

// EventSource supplies the input events for a tick.
type EventSource interface {
	Events(tick int) []forcefield.Event
}

// Simulation is safe for use by one driver goroutine plus any number of
// snapshot readers. Metrics and observers run inside Tick and must not
// call back into the simulation.
type Simulation struct {
	mu sync.Mutex

	grid       *mesh.Grid
	neighbors  *mesh.NeighborTable
	layout     *compute.Layout
	field      *forcefield.Field
	integrator *integrators.SpringMesh
	backend    compute.Backend
	buf        *integrators.Buffers

	params   dynamo.Params
	validate bool
	tick     int
	time     float64

	metrics   []dynamo.Metric
	observers []dynamo.Observer
	logger    *slog.Logger
}

// New validates cfg, allocates every buffer and lays the mesh out at rest.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	s := &Simulation{
		params:    cfg.Params,
		validate:  cfg.ValidateState,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.backend == nil {
		s.backend = compute.NewCPUBackend()
	}
	if !s.backend.Available() {
		return nil, fmt.Errorf("backend %s: %w", s.backend.Name(), dynamo.ErrMissingCollaborator)
	}

	grid, err := mesh.NewGridFromTiles(cfg.Tiles)
	if err != nil {
		return nil, err
	}
	neighbors, err := mesh.NewNeighborTable(grid)
	if err != nil {
		return nil, err
	}
	layout, err := compute.NewLayout(cfg.Tiles)
	if err != nil {
		return nil, err
	}
	field, err := forcefield.New(neighbors, cfg.Params, s.logger)
	if err != nil {
		return nil, err
	}

	s.grid = grid
	s.neighbors = neighbors
	s.layout = layout
	s.field = field
	s.integrator = integrators.NewSpringMesh(neighbors)

	n := grid.VertexCount()
	s.buf = &integrators.Buffers{
		Positions:     make([]dynamo.Vec3, n),
		Velocities:    make([]dynamo.Vec3, n),
		Forces:        make([]dynamo.Vec3, n),
		NextPositions: make([]dynamo.Vec3, n),
		NextVel:       make([]dynamo.Vec3, n),
	}
	s.resetLocked()

	s.logger.Debug("simulation allocated",
		"width", grid.Width, "height", grid.Height, "vertices", n,
		"tiles", cfg.Tiles.Groups(), "backend", s.backend.Name())
	return s, nil
}

func (s *Simulation) AddMetric(m dynamo.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *Simulation) AddObserver(o dynamo.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Simulation) Grid() *mesh.Grid                    { return s.grid }
func (s *Simulation) Neighbors() *mesh.NeighborTable      { return s.neighbors }
func (s *Simulation) BackendName() string                 { return s.backend.Name() }
func (s *Simulation) Field() *forcefield.Field            { return s.field }
func (s *Simulation) Layout() *compute.Layout             { return s.layout }
func (s *Simulation) Integrator() *integrators.SpringMesh { return s.integrator }

// Reset returns every vertex to the resting lattice with zero velocity and
// force, and rewinds the clock.
func (s *Simulation) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return dynamo.ErrReleased
	}
	s.resetLocked()
	return nil
}

func (s *Simulation) resetLocked() {
	for i := range s.buf.Positions {
		p := s.grid.RestPosition(i, s.params.RestLength)
		s.buf.Positions[i] = p
		s.buf.NextPositions[i] = p
	}
	clear(s.buf.Velocities)
	clear(s.buf.NextVel)
	clear(s.buf.Forces)
	s.field.Clear()
	s.tick = 0
	s.time = 0
	for _, m := range s.metrics {
		m.Reset()
	}
}

func (s *Simulation) Params() dynamo.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces the physical parameters between ticks. Changing the
// rest length invalidates the resting lattice, so it resets the mesh.
func (s *Simulation) SetParams(p dynamo.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return dynamo.ErrReleased
	}
	restChanged := p.RestLength != s.params.RestLength
	s.params = p
	s.field.SetParams(p)
	if restChanged {
		s.logger.Info("rest length changed, resetting mesh", "rest_length", p.RestLength)
		s.resetLocked()
	}
	return nil
}

// SetParam changes a single named parameter.
func (s *Simulation) SetParam(name string, value float64) error {
	p, err := s.Params().With(name, value)
	if err != nil {
		return err
	}
	return s.SetParams(p)
}

// Tick advances the mesh by dt under this tick's input events. Events that
// miss the grid are logged and dropped without affecting the rest.
func (s *Simulation) Tick(dt float64, events []forcefield.Event) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return Snapshot{}, dynamo.ErrReleased
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Snapshot{}, fmt.Errorf("delta time %v must be positive: %w", dt, dynamo.ErrParameterBounds)
	}

	s.field.Assemble(events)
	copy(s.buf.Forces, s.field.Forces())

	s.integrator.Step(s.backend, s.layout, s.buf, s.params, dt)
	s.tick++
	s.time += dt

	if s.validate {
		for i, p := range s.buf.Positions {
			if !dynamo.IsFinite(p) || !dynamo.IsFinite(s.buf.Velocities[i]) {
				return s.snapshotLocked(), &dynamo.TickError{
					Tick:    s.tick,
					Time:    s.time,
					Wrapped: fmt.Errorf("vertex %d: %w", i, dynamo.ErrInvalidState),
				}
			}
		}
	}

	frame := dynamo.Frame{
		Tick:       s.tick,
		Time:       s.time,
		Dt:         dt,
		Params:     s.params,
		Positions:  s.buf.Positions,
		Velocities: s.buf.Velocities,
	}
	for _, m := range s.metrics {
		m.Observe(frame)
	}
	for _, o := range s.observers {
		o.OnTick(frame)
	}

	return s.snapshotLocked(), nil
}

// Run ticks until ctx is done, ticks have elapsed or a tick fails.
func (s *Simulation) Run(ctx context.Context, ticks int, dt float64, source EventSource) (Snapshot, error) {
	var snap Snapshot
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		default:
		}

		var events []forcefield.Event
		if source != nil {
			events = source.Events(s.CurrentTick())
		}

		var err error
		snap, err = s.Tick(dt, events)
		if err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func (s *Simulation) CurrentTick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Metrics returns the current value of every registered metric.
func (s *Simulation) Metrics() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Snapshot copies the current positions.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return Snapshot{}
	}
	return s.snapshotLocked()
}

func (s *Simulation) snapshotLocked() Snapshot {
	return Snapshot{
		Tick:      s.tick,
		Time:      s.time,
		Width:     s.grid.Width,
		Height:    s.grid.Height,
		Positions: append([]dynamo.Vec3(nil), s.buf.Positions...),
	}
}

// Velocities copies the current velocities.
func (s *Simulation) Velocities() []dynamo.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return append([]dynamo.Vec3(nil), s.buf.Velocities...)
}

// Forces copies the external forces used by the last tick.
func (s *Simulation) Forces() []dynamo.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return append([]dynamo.Vec3(nil), s.buf.Forces...)
}

// Released reports whether Shutdown has run.
func (s *Simulation) Released() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf == nil
}

// Shutdown releases every buffer at once. It is safe on a nil simulation
// and safe to call more than once.
func (s *Simulation) Shutdown() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return
	}
	s.buf = nil
	if s.backend != nil {
		s.backend.Cleanup()
	}
	s.logger.Debug("simulation released", "ticks", s.tick)
}
