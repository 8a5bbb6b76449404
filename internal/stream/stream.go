// Package stream serves a running mesh to websocket clients. Every client
// receives mesh_update messages as the simulation ticks and may send tap,
// param and reset commands back.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/sim"
)

type Config struct {
	Dt float64
	// Interval is the wall-clock time between ticks in Run.
	Interval time.Duration
	// BroadcastEvery sends an update every n ticks.
	BroadcastEvery int
}

func DefaultConfig() Config {
	return Config{Dt: 0.016, Interval: 16 * time.Millisecond, BroadcastEvery: 2}
}

// MeshUpdate carries the height of every vertex, row by row.
type MeshUpdate struct {
	Type     string    `json:"type"`
	Tick     int       `json:"tick"`
	Time     float64   `json:"time"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Heights  []float64 `json:"heights"`
	Energy   float64   `json:"energy"`
	MaxDepth float64   `json:"max_depth"`
}

// Command is a message from a client.
type Command struct {
	Type     string  `json:"type"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Pressure float64 `json:"pressure,omitempty"`
	Ticks    int     `json:"ticks,omitempty"`
	Name     string  `json:"name,omitempty"`
	Value    float64 `json:"value,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type press struct {
	event     forcefield.Event
	remaining int
}

type Server struct {
	sim      *sim.Simulation
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	pending []press
	steps   int

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

func New(s *sim.Simulation, cfg Config, logger *slog.Logger) (*Server, error) {
	if s == nil {
		return nil, fmt.Errorf("stream needs a simulation: %w", dynamo.ErrMissingCollaborator)
	}
	if !(cfg.Dt > 0) {
		return nil, fmt.Errorf("delta time %v must be positive: %w", cfg.Dt, dynamo.ErrParameterBounds)
	}
	if cfg.BroadcastEvery < 1 {
		cfg.BroadcastEvery = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sim:    s,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sim.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tick":    snap.Tick,
		"time":    snap.Time,
		"width":   snap.Width,
		"height":  snap.Height,
		"backend": s.sim.BackendName(),
		"clients": s.ClientCount(),
		"params":  s.sim.Params().GetParams(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	s.clientsMu.Lock()
	s.clients[conn] = connMu
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()
	s.logger.Info("client connected", "remote", r.RemoteAddr)

	s.send(conn, connMu, s.update(s.sim.Snapshot()))

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			s.logger.Debug("client gone", "remote", r.RemoteAddr, "error", err)
			return
		}
		if err := s.Apply(cmd); err != nil {
			s.send(conn, connMu, errorMessage{Type: "error", Error: err.Error()})
		}
	}
}

// Apply executes one client command.
func (s *Server) Apply(cmd Command) error {
	switch cmd.Type {
	case "tap":
		if cmd.Pressure < 0 || cmd.Pressure > 1 {
			return fmt.Errorf("pressure %v not in [0, 1]: %w", cmd.Pressure, dynamo.ErrParameterBounds)
		}
		ticks := max(cmd.Ticks, 1)
		s.mu.Lock()
		s.pending = append(s.pending, press{
			event:     forcefield.Event{X: cmd.X, Y: cmd.Y, Pressure: cmd.Pressure},
			remaining: ticks,
		})
		s.mu.Unlock()
		return nil
	case "param":
		return s.sim.SetParam(cmd.Name, cmd.Value)
	case "reset":
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		return s.sim.Reset()
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// Pending is the number of presses still being applied.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Events drains one tick of pending presses.
func (s *Server) Events(int) []forcefield.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	events := make([]forcefield.Event, 0, len(s.pending))
	kept := s.pending[:0]
	for _, p := range s.pending {
		events = append(events, p.event)
		p.remaining--
		if p.remaining > 0 {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	return events
}

// Step advances one tick and broadcasts when due.
func (s *Server) Step() (sim.Snapshot, error) {
	snap, err := s.sim.Tick(s.cfg.Dt, s.Events(s.sim.CurrentTick()))
	if err != nil {
		return snap, err
	}
	s.mu.Lock()
	s.steps++
	due := s.steps%s.cfg.BroadcastEvery == 0
	s.mu.Unlock()
	if due {
		s.Broadcast(s.update(snap))
	}
	return snap, nil
}

// Run steps on a ticker until ctx is done or a tick fails.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Step(); err != nil {
				return err
			}
		}
	}
}

// Broadcast writes msg to every client and drops the ones that fail.
func (s *Server) Broadcast(msg any) {
	var failed []*websocket.Conn
	s.clientsMu.RLock()
	for conn, mu := range s.clients {
		if err := s.send(conn, mu, msg); err != nil {
			failed = append(failed, conn)
		}
	}
	s.clientsMu.RUnlock()

	if len(failed) == 0 {
		return
	}
	s.clientsMu.Lock()
	for _, conn := range failed {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
}

func (s *Server) send(conn *websocket.Conn, mu *sync.Mutex, msg any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) update(snap sim.Snapshot) MeshUpdate {
	heights := make([]float64, len(snap.Positions))
	for i, p := range snap.Positions {
		heights[i] = p.Z
	}
	return MeshUpdate{
		Type:     "mesh_update",
		Tick:     snap.Tick,
		Time:     snap.Time,
		Width:    snap.Width,
		Height:   snap.Height,
		Heights:  heights,
		Energy:   metrics.KineticEnergy(s.sim.Velocities(), s.sim.Params().Mass),
		MaxDepth: metrics.MaxDepth(snap.Positions),
	}
}
