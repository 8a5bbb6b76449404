package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/meshsim/internal/config"
	"github.com/san-kum/meshsim/internal/sim"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

var presetInfo = map[string]string{
	"calm":  "default sheet, light damping",
	"jelly": "soft and heavy, slow to settle",
	"stiff": "tight springs, small steps",
	"tiny":  "8x8 grid, serial backend",
}

const (
	stateMenu = iota
	stateSim
)

// Picker is a preset menu. Choosing a preset builds a simulation and hands
// the screen to a live Model.
type Picker struct {
	state    int
	cursor   int
	presets  []string
	live     Model
	current  *sim.Simulation
	err      error
	override func(*config.Config)
}

// NewPicker lists the built-in presets. override, when set, is applied to
// each preset before it starts.
func NewPicker(override func(*config.Config)) *Picker {
	return &Picker{presets: config.ListPresets(), override: override}
}

func (p *Picker) Init() tea.Cmd { return nil }

func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.state == stateSim {
		if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
			p.stop()
			return p, nil
		}
		next, cmd := p.live.Update(msg)
		p.live = next.(Model)
		return p, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.presets)-1 {
			p.cursor++
		}
	case "enter", " ":
		return p, p.start(p.presets[p.cursor])
	}
	return p, nil
}

func (p *Picker) start(name string) tea.Cmd {
	cfg := config.GetPreset(name)
	if p.override != nil {
		p.override(cfg)
	}
	simCfg, opts, err := cfg.ToSim()
	if err != nil {
		p.err = err
		return nil
	}
	s, err := sim.New(simCfg, opts...)
	if err != nil {
		p.err = err
		return nil
	}
	live, err := NewModel(s, name, cfg.Dt)
	if err != nil {
		s.Shutdown()
		p.err = err
		return nil
	}
	p.current, p.live, p.state, p.err = s, live, stateSim, nil
	return p.live.Init()
}

func (p *Picker) stop() {
	p.current.Shutdown()
	p.current = nil
	p.state = stateMenu
}

// Close releases the running simulation, if any.
func (p *Picker) Close() {
	if p.current != nil {
		p.stop()
	}
}

func (p *Picker) View() string {
	if p.state == stateSim {
		return p.live.View() + "\n" + dimmer.Render("esc: back to presets")
	}

	var b strings.Builder
	b.WriteString(cyan.Render("MESHSIM") + dim.Render("  spring-mass sheet") + "\n\n")
	for i, name := range p.presets {
		line := fmt.Sprintf("%-8s %s", name, dim.Render(presetInfo[name]))
		if i == p.cursor {
			b.WriteString(white.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	if p.err != nil {
		b.WriteString("\n" + errorStyle.Render(p.err.Error()) + "\n")
	}
	b.WriteString("\n" + dimmer.Render("↑↓ select  enter start  q quit"))
	return b.String()
}

// RunPicker shows the preset menu and blocks until the user quits.
func RunPicker(override func(*config.Config)) error {
	p := NewPicker(override)
	defer p.Close()
	_, err := tea.NewProgram(p, tea.WithAltScreen()).Run()
	return err
}
