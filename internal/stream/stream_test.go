package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/sim"
)

func newServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := sim.New(sim.Config{
		Tiles:  dynamo.TileConfig{GroupsX: 2, GroupsY: 2, ThreadsX: 4, ThreadsY: 4},
		Params: dynamo.Params{Mass: 1, Damping: 0.9, Stiffness: 10, RestLength: 1, MaxTouchForce: 50},
	}, sim.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Shutdown)

	srv, err := New(s, Config{Dt: 0.01, Interval: time.Millisecond, BroadcastEvery: 1}, logger)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInitialUpdate(t *testing.T) {
	srv, ts := newServer(t)
	conn := dial(t, ts)

	var msg MeshUpdate
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "mesh_update" || msg.Tick != 0 {
		t.Errorf("expected resting update, got %+v", msg)
	}
	if msg.Width != 8 || msg.Height != 8 || len(msg.Heights) != 64 {
		t.Errorf("expected 8x8 heights, got %dx%d with %d", msg.Width, msg.Height, len(msg.Heights))
	}
	waitFor(t, "client registration", func() bool { return srv.ClientCount() == 1 })
}

func TestTapReachesMesh(t *testing.T) {
	srv, ts := newServer(t)
	conn := dial(t, ts)

	var msg MeshUpdate
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "client registration", func() bool { return srv.ClientCount() == 1 })

	if err := conn.WriteJSON(Command{Type: "tap", X: -0.5, Y: -0.5, Pressure: 1, Ticks: 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tap", func() bool { return srv.Pending() == 1 })

	for i := 0; i < 4; i++ {
		if _, err := srv.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if srv.Pending() != 0 {
		t.Errorf("expected tap to expire after 3 ticks, %d pending", srv.Pending())
	}

	for i := 0; i < 4; i++ {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
	}
	if msg.Tick != 4 {
		t.Errorf("expected tick 4, got %d", msg.Tick)
	}
	if msg.MaxDepth <= 0 || msg.Heights[27] >= 0 {
		t.Errorf("expected vertex 27 pressed in, got depth %f height %f", msg.MaxDepth, msg.Heights[27])
	}
	if msg.Energy <= 0 {
		t.Error("expected kinetic energy after a tap")
	}
}

func TestBadCommand(t *testing.T) {
	_, ts := newServer(t)
	conn := dial(t, ts)

	var first MeshUpdate
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}

	for _, cmd := range []Command{
		{Type: "param", Name: "bogus", Value: 1},
		{Type: "tap", Pressure: 2},
		{Type: "jump"},
	} {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatal(err)
		}
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg["type"] != "error" || msg["error"] == "" {
			t.Errorf("%s: expected an error message, got %v", cmd.Type, msg)
		}
	}
}

func TestApply(t *testing.T) {
	srv, _ := newServer(t)

	if err := srv.Apply(Command{Type: "param", Name: "stiffness", Value: 30}); err != nil {
		t.Fatal(err)
	}
	if srv.sim.Params().Stiffness != 30 {
		t.Error("expected stiffness changed")
	}
	if err := srv.Apply(Command{Type: "tap", Pressure: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := srv.Apply(Command{Type: "param", Name: "damping", Value: 1}); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}

	if _, err := srv.Step(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Apply(Command{Type: "reset"}); err != nil {
		t.Fatal(err)
	}
	if srv.Pending() != 0 || srv.sim.CurrentTick() != 0 {
		t.Error("expected reset to clear presses and rewind")
	}
}

func TestStatus(t *testing.T) {
	_, ts := newServer(t)
	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status["width"] != float64(8) || status["clients"] != float64(0) {
		t.Errorf("unexpected status %v", status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := srv.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline, got %v", err)
	}
	if srv.sim.CurrentTick() == 0 {
		t.Error("expected ticks while running")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, DefaultConfig(), nil); !errors.Is(err, dynamo.ErrMissingCollaborator) {
		t.Errorf("expected ErrMissingCollaborator, got %v", err)
	}
}
