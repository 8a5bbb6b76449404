package sim_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/meshsim/internal/compute"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/sim"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func scenarioParams() dynamo.Params {
	return dynamo.Params{Mass: 1, Damping: 0.5, Stiffness: 10, RestLength: 1, MaxTouchForce: 100}
}

func grid4x4() dynamo.TileConfig {
	return dynamo.TileConfig{GroupsX: 1, GroupsY: 1, ThreadsX: 4, ThreadsY: 4}
}

func grid8x8() dynamo.TileConfig {
	return dynamo.TileConfig{GroupsX: 2, GroupsY: 2, ThreadsX: 4, ThreadsY: 4}
}

func newSim(tiles dynamo.TileConfig, opts ...sim.Option) *sim.Simulation {
	cfg := sim.Config{Tiles: tiles, Params: scenarioParams(), ValidateState: true}
	s, err := sim.New(cfg, append([]sim.Option{sim.WithLogger(quiet)}, opts...)...)
	Expect(err).NotTo(HaveOccurred())
	return s
}

// tapAt returns an event that lands exactly on vertex i.
func tapAt(s *sim.Simulation, i int, pressure float64) forcefield.Event {
	x, y := s.Field().WorldOf(i)
	return forcefield.Event{X: x, Y: y, Pressure: pressure}
}

type taps struct {
	until  int
	events []forcefield.Event
}

func (t taps) Events(tick int) []forcefield.Event {
	if tick < t.until {
		return t.events
	}
	return nil
}

var _ = Describe("Simulation", func() {
	var s *sim.Simulation

	AfterEach(func() {
		s.Shutdown()
	})

	Describe("initialization", func() {
		BeforeEach(func() {
			s = newSim(grid8x8())
		})

		It("starts on a centered resting lattice with zero velocity", func() {
			snap := s.Snapshot()
			Expect(snap.Positions).To(HaveLen(64))
			Expect(snap.Width).To(Equal(8))

			var sum dynamo.Vec3
			for i, p := range snap.Positions {
				x, y := s.Grid().Coords(i)
				Expect(p.X).To(BeNumerically("~", float64(x)-3.5, 1e-12))
				Expect(p.Y).To(BeNumerically("~", float64(y)-3.5, 1e-12))
				Expect(p.Z).To(BeZero())
				sum.X += p.X
				sum.Y += p.Y
			}
			Expect(sum.X).To(BeNumerically("~", 0, 1e-12))
			Expect(sum.Y).To(BeNumerically("~", 0, 1e-12))

			for _, v := range s.Velocities() {
				Expect(v).To(Equal(dynamo.Vec3{}))
			}
		})

		It("rejects out-of-range parameters instead of clamping", func() {
			cfg := sim.Config{Tiles: grid4x4(), Params: scenarioParams()}
			cfg.Params.Damping = 1.0
			_, err := sim.New(cfg, sim.WithLogger(quiet))
			Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
		})

		It("rejects empty tile layouts", func() {
			cfg := sim.Config{Tiles: dynamo.TileConfig{GroupsX: 1, GroupsY: 0, ThreadsX: 4, ThreadsY: 4}, Params: scenarioParams()}
			_, err := sim.New(cfg, sim.WithLogger(quiet))
			Expect(errors.Is(err, dynamo.ErrInvalidGrid)).To(BeTrue())
		})
	})

	Describe("ticking", func() {
		It("leaves a 4x4 grid at rest when no force is applied", func() {
			s = newSim(grid4x4())
			before := s.Snapshot()

			after, err := s.Tick(0.1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Tick).To(Equal(1))
			Expect(after.Time).To(BeNumerically("~", 0.1, 1e-12))
			Expect(after.Positions).To(Equal(before.Positions))
		})

		It("moves a pressed interior vertex of an 8x8 grid", func() {
			s = newSim(grid8x8())
			const i = 27
			before := s.Snapshot().Positions[i]

			after, err := s.Tick(0.1, []forcefield.Event{tapAt(s, i, 1.0)})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Forces()[i].Z).To(BeNumerically("<", 0))
			Expect(s.Velocities()[i].Z).NotTo(BeZero())
			Expect(after.Positions[i].Z).NotTo(Equal(before.Z))
		})

		It("never injects force into the rigid border", func() {
			s = newSim(grid8x8())
			g := s.Grid()

			var events []forcefield.Event
			for i := 0; i < g.VertexCount(); i++ {
				x, y := g.Coords(i)
				if (x == 0 || x == 7) || (y == 0 || y == 7) {
					events = append(events, tapAt(s, i, 1.0))
				}
			}

			for tick := 0; tick < 3; tick++ {
				_, err := s.Tick(0.1, events)
				Expect(err).NotTo(HaveOccurred())
				forces := s.Forces()
				for i := 0; i < g.VertexCount(); i++ {
					if !g.IsInterior(i) {
						Expect(forces[i]).To(Equal(dynamo.Vec3{}), "border vertex %d", i)
					}
				}
			}
		})

		It("lets the border move through its springs", func() {
			s = newSim(grid8x8())
			_, err := s.Run(context.Background(), 5, 0.1, taps{until: 5, events: []forcefield.Event{tapAt(s, 27, 1.0)}})
			Expect(err).NotTo(HaveOccurred())

			moved := false
			snap := s.Snapshot()
			for i, p := range snap.Positions {
				if !s.Grid().IsInterior(i) && p.Z != 0 {
					moved = true
					break
				}
			}
			Expect(moved).To(BeTrue())
		})

		It("drops taps that miss the grid without failing the tick", func() {
			s = newSim(grid8x8())
			snap, err := s.Tick(0.1, []forcefield.Event{{X: 1e6, Y: 0, Pressure: 1}, tapAt(s, 27, 1.0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Positions[27].Z).To(BeNumerically("<", 0))
		})

		It("rejects non-positive delta time", func() {
			s = newSim(grid4x4())
			_, err := s.Tick(0, nil)
			Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
			_, err = s.Tick(math.NaN(), nil)
			Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
		})

		It("damps motion once the force stops", func() {
			s = newSim(grid8x8())
			_, err := s.Run(context.Background(), 5, 0.1, taps{until: 5, events: []forcefield.Event{tapAt(s, 27, 1.0)}})
			Expect(err).NotTo(HaveOccurred())

			initial := metrics.TotalSpeed(s.Velocities())
			Expect(initial).To(BeNumerically(">", 0))

			last := initial
			for sample := 0; sample < 20; sample++ {
				_, err := s.Run(context.Background(), 20, 0.1, nil)
				Expect(err).NotTo(HaveOccurred())
				speed := metrics.TotalSpeed(s.Velocities())
				Expect(speed).To(BeNumerically("<", last))
				last = speed
			}
			Expect(last).To(BeNumerically("<", initial*1e-2))
		})

		It("is deterministic across backends", func() {
			s = newSim(dynamo.DefaultTiles(), sim.WithBackend(compute.NewSerialBackend()))
			other := newSim(dynamo.DefaultTiles(), sim.WithBackend(compute.NewCPUBackendWorkers(6)))
			defer other.Shutdown()

			center := s.Grid().Index(30, 14)
			dts := []float64{0.016, 0.017, 0.015, 0.016}
			for tick := 0; tick < 60; tick++ {
				var events []forcefield.Event
				if tick%7 < 3 {
					events = []forcefield.Event{tapAt(s, center+tick%5, 0.8)}
				}
				dt := dts[tick%len(dts)]
				a, err := s.Tick(dt, events)
				Expect(err).NotTo(HaveOccurred())
				b, err := other.Tick(dt, events)
				Expect(err).NotTo(HaveOccurred())
				Expect(a.Positions).To(Equal(b.Positions))
			}
		})
	})

	Describe("parameters", func() {
		BeforeEach(func() {
			s = newSim(grid8x8())
		})

		It("resets the lattice when the rest length changes", func() {
			_, err := s.Run(context.Background(), 3, 0.1, taps{until: 3, events: []forcefield.Event{tapAt(s, 27, 1.0)}})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.SetParam("rest_length", 2.0)).To(Succeed())
			Expect(s.CurrentTick()).To(BeZero())

			snap := s.Snapshot()
			Expect(snap.Positions[1].X - snap.Positions[0].X).To(BeNumerically("~", 2.0, 1e-12))
			for _, p := range snap.Positions {
				Expect(p.Z).To(BeZero())
			}
		})

		It("keeps the mesh when other parameters change", func() {
			_, err := s.Tick(0.1, []forcefield.Event{tapAt(s, 27, 1.0)})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.SetParam("stiffness", 20)).To(Succeed())
			Expect(s.CurrentTick()).To(Equal(1))
			Expect(s.Params().Stiffness).To(Equal(20.0))
		})

		It("rejects invalid updates", func() {
			err := s.SetParam("mass", -1)
			Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
			Expect(s.Params().Mass).To(Equal(1.0))
		})
	})

	Describe("metrics and observers", func() {
		It("observes every tick", func() {
			s = newSim(grid8x8())
			rec := metrics.NewRecorder(0)
			s.AddObserver(rec)
			s.AddMetric(metrics.NewDisplacement())

			_, err := s.Run(context.Background(), 4, 0.1, taps{until: 2, events: []forcefield.Event{tapAt(s, 27, 1.0)}})
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Samples()).To(HaveLen(4))
			Expect(rec.Samples()[3].Tick).To(Equal(4))
			Expect(s.Metrics()["max_displacement"]).To(BeNumerically(">", 0))

			Expect(s.Reset()).To(Succeed())
			Expect(s.Metrics()["max_displacement"]).To(BeZero())
		})
	})

	Describe("shutdown", func() {
		It("is safe before allocation and when repeated", func() {
			var never *sim.Simulation
			Expect(func() { never.Shutdown() }).NotTo(Panic())
			Expect(never.Released()).To(BeTrue())

			s = newSim(grid4x4())
			s.Shutdown()
			s.Shutdown()
			Expect(s.Released()).To(BeTrue())
		})

		It("refuses to tick after release", func() {
			s = newSim(grid4x4())
			s.Shutdown()

			_, err := s.Tick(0.1, nil)
			Expect(errors.Is(err, dynamo.ErrReleased)).To(BeTrue())
			Expect(s.Reset()).To(MatchError(dynamo.ErrReleased))
			Expect(s.Snapshot().Positions).To(BeEmpty())
			Expect(s.Velocities()).To(BeNil())
		})

		It("stops a run when the context is canceled", func() {
			s = newSim(grid4x4())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := s.Run(ctx, 10, 0.1, nil)
			Expect(err).To(MatchError(context.Canceled))
			Expect(s.CurrentTick()).To(BeZero())
		})
	})
})
