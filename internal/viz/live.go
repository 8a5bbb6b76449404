package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/scene"
	"github.com/san-kum/meshsim/internal/sim"
)

const (
	frameRate       = 60
	historyCapacity = 600
	tapTicks        = 8
	tapPressure     = 1.0
	profileRows     = 5
	wireRows        = 16
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model is the live view of one simulation. It is the simulation's only
// input source: taps placed with the cursor become force events.
type Model struct {
	sim     *sim.Simulation
	spawner *scene.Spawner
	name    string
	dt      float64

	cursorX, cursorY int
	holding          int
	running          bool
	view3D           bool
	showHelp         bool
	err              error

	camera  *Camera
	wire    *Canvas
	profile *Canvas

	energyHistory []float64
	initialParams dynamo.Params
	paramKeys     []string
	selected      int
}

// NewModel wraps a simulation. The caller keeps ownership and must shut it
// down after the program exits.
func NewModel(s *sim.Simulation, name string, dt float64) (Model, error) {
	p := s.Params()
	spawner, err := scene.NewSpawner(s.Grid(), p.RestLength)
	if err != nil {
		return Model{}, err
	}
	if err := spawner.Sync(s.Snapshot()); err != nil {
		return Model{}, err
	}

	keys := make([]string, 0, 5)
	for k := range p.GetParams() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g := s.Grid()
	cam := NewCamera()
	cam.Fit(footprint(g, p.RestLength))

	return Model{
		sim:           s,
		spawner:       spawner,
		name:          name,
		dt:            dt,
		cursorX:       g.Width / 2,
		cursorY:       g.Height / 2,
		running:       true,
		camera:        cam,
		wire:          NewCanvas(g.Width, wireRows),
		profile:       NewCanvas(g.Width, profileRows),
		energyHistory: make([]float64, 0, historyCapacity),
		initialParams: p,
		paramKeys:     keys,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "left", "h":
			m.moveCursor(-1, 0)
		case "right", "l":
			m.moveCursor(1, 0)
		case "up", "k":
			m.moveCursor(0, 1)
		case "down", "j":
			m.moveCursor(0, -1)
		case "enter":
			m.holding = tapTicks
		case "tab":
			m.cycleParam()
		case "+", "=":
			m.adjustParam(1.05)
		case "-", "_":
			m.adjustParam(0.95)
		case "m":
			m.view3D = !m.view3D
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) moveCursor(dx, dy int) {
	g := m.sim.Grid()
	m.cursorX = max(0, min(g.Width-1, m.cursorX+dx))
	m.cursorY = max(0, min(g.Height-1, m.cursorY+dy))
}

// Events implements sim.EventSource with the tap under the cursor.
func (m *Model) Events(int) []forcefield.Event {
	if m.holding <= 0 {
		return nil
	}
	wx, wy := m.sim.Field().WorldOf(m.sim.Grid().Index(m.cursorX, m.cursorY))
	return []forcefield.Event{{X: wx, Y: wy, Pressure: tapPressure}}
}

// step advances the mesh by one tick.
func (m *Model) step() {
	events := m.Events(m.sim.CurrentTick())
	if m.holding > 0 {
		m.holding--
	}

	snap, err := m.sim.Tick(m.dt, events)
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	if err := m.spawner.Sync(snap); err != nil {
		m.err = err
		m.running = false
		return
	}

	energy := metrics.KineticEnergy(m.sim.Velocities(), m.sim.Params().Mass)
	m.energyHistory = append(m.energyHistory, energy)
	if len(m.energyHistory) > historyCapacity {
		m.energyHistory = m.energyHistory[1:]
	}
}

func (m *Model) cycleParam() {
	m.selected = (m.selected + 1) % len(m.paramKeys)
}

func (m *Model) adjustParam(factor float64) {
	key := m.paramKeys[m.selected]
	val := m.sim.Params().GetParams()[key]
	if err := m.sim.SetParam(key, val*factor); err != nil {
		m.err = err
		return
	}
	m.err = nil
	if key == "rest_length" {
		m.resync()
	}
}

// reset restores the resting lattice and the initial parameters.
func (m *Model) reset() {
	if err := m.sim.SetParams(m.initialParams); err != nil {
		m.err = err
		return
	}
	if err := m.sim.Reset(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.holding = 0
	m.energyHistory = m.energyHistory[:0]
	m.resync()
}

func (m *Model) resync() {
	if err := m.spawner.Sync(m.sim.Snapshot()); err != nil {
		m.err = err
	}
	m.camera.Fit(footprint(m.sim.Grid(), m.sim.Params().RestLength))
}

// HeightMap renders one character per entity, top row first. Darker ramp
// characters are deeper dents.
func (m Model) HeightMap() string {
	g := m.spawner.Grid()
	lo, hi := m.spawner.HeightRange()
	span := math.Max(math.Max(-lo, hi), 1e-9)

	var b strings.Builder
	for y := g.Height - 1; y >= 0; y-- {
		for x := 0; x < g.Width; x++ {
			e, _ := m.spawner.At(x, y)
			if x == m.cursorX && y == m.cursorY {
				b.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Accent).Render("◆"))
				continue
			}
			norm := math.Abs(e.Position.Y) / span
			idx := int(norm * float64(len(depthRamp)-1))
			idx = max(0, min(len(depthRamp)-1, idx))
			ch := depthRamp[idx]
			if ch == ' ' && !e.Kind.IsMassUnit() {
				ch = '·'
			}
			style := lipgloss.NewStyle().Foreground(CurrentTheme.DepthColor(norm))
			if !e.Kind.IsMassUnit() {
				style = style.Foreground(CurrentTheme.Muted)
			}
			b.WriteString(style.Render(string(ch)))
		}
		if y > 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// CrossSection plots the heights of the cursor's row.
func (m Model) CrossSection() string {
	g := m.spawner.Grid()
	heights := make([]float64, g.Width)
	span := 0.0
	for x := range heights {
		e, _ := m.spawner.At(x, m.cursorY)
		heights[x] = e.Position.Y
		span = math.Max(span, math.Abs(e.Position.Y))
	}
	m.profile.Clear()
	m.profile.Profile(heights, span)
	return m.profile.String()
}

// Wireframe renders the mesh in 3D.
func (m Model) Wireframe() string {
	m.wire.Clear()
	Render3D(m.wire, MeshWireframe(m.spawner), m.camera)
	return m.wire.String()
}

// View renders the TUI interface.
func (m Model) View() string {
	var left string
	if m.view3D {
		left = m.Wireframe()
	} else {
		left = m.HeightMap()
	}
	left += "\n\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(m.CrossSection())
	mapView := mapStyle.Render(left)

	snap := m.sim.Snapshot()
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.name)) + "\n")

	switch {
	case m.err != nil:
		s.WriteString(errorStyle.Render("ERROR") + "\n")
	case m.running:
		s.WriteString(StatusRunning.Render("RUNNING") + "\n")
	default:
		s.WriteString(StatusPaused.Render("PAUSED") + "\n")
	}
	s.WriteString("\n")

	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Kinetic energy"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	energy := 0.0
	if len(m.energyHistory) > 0 {
		energy = m.energyHistory[len(m.energyHistory)-1]
	}
	g := m.sim.Grid()
	s.WriteString(labelStyle.Render("Tick") + valueStyle.Render(fmt.Sprintf("%d", snap.Tick)) + "\n")
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2fs", snap.Time)) + "\n")
	s.WriteString(labelStyle.Render("Energy") + valueStyle.Render(fmt.Sprintf("%.4f", energy)) + "\n")
	s.WriteString(labelStyle.Render("Depth") + valueStyle.Render(fmt.Sprintf("%.4f", metrics.MaxDepth(snap.Positions))) + "\n")
	s.WriteString(labelStyle.Render("Grid") + valueStyle.Render(fmt.Sprintf("%dx%d", g.Width, g.Height)) + "\n")
	s.WriteString(labelStyle.Render("Backend") + valueStyle.Render(m.sim.BackendName()) + "\n")
	s.WriteString(labelStyle.Render("Cursor") + valueStyle.Render(fmt.Sprintf("(%d, %d)", m.cursorX, m.cursorY)) + "\n")

	s.WriteString("\nPARAMETERS\n")
	params := m.sim.Params().GetParams()
	initial := m.initialParams.GetParams()
	for i, k := range m.paramKeys {
		val := params[k]
		ratio := 0.0
		if initial[k] != 0 {
			ratio = val / (2.0 * initial[k])
		}
		line := fmt.Sprintf("%-15s %s %.3f", k, ProgressBar(ratio, 10), val)
		if i == m.selected {
			s.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("\n─────────────────────\n←↑↓→:Cursor ⏎:Tap SP:Pause\nTab:Param +/-:Tune R:Reset\nM:3D T:Theme ?:Help Q:Quit"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, mapView, statsStyle.Render(s.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Arrows   - Move tap cursor          ║
║  Enter    - Tap at cursor            ║
║  Space    - Pause/Resume simulation  ║
║  R        - Reset mesh and params    ║
║  Tab      - Cycle parameters         ║
║  +/-      - Tune parameter (±5%)     ║
║  M        - Toggle 3D wireframe      ║
║  X/Y      - Rotate 3D camera         ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

// Run starts the live view and blocks until the user quits.
func Run(s *sim.Simulation, name string, dt float64) error {
	m, err := NewModel(s, name, dt)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
