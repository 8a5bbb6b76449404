package viz

import "github.com/charmbracelet/lipgloss"

// Theme defines color scheme for the TUI
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	Warning lipgloss.Color
	// Depth runs from the resting surface to the deepest dent.
	Depth []lipgloss.Color
}

// Available themes
var (
	ThemeOcean = Theme{
		Name:    "ocean",
		Primary: lipgloss.Color("#00a8cc"),
		Accent:  lipgloss.Color("#ffd700"),
		Muted:   lipgloss.Color("#4488aa"),
		Warning: lipgloss.Color("#ffcc00"),
		Depth: []lipgloss.Color{
			"#1b3a4b", "#1f5f7a", "#0077be", "#00a8cc", "#48cae4", "#90e0ef", "#caf0f8",
		},
	}

	ThemeSunset = Theme{
		Name:    "sunset",
		Primary: lipgloss.Color("#ff6b6b"),
		Accent:  lipgloss.Color("#ff9ff3"),
		Muted:   lipgloss.Color("#8b6b8c"),
		Warning: lipgloss.Color("#ffc048"),
		Depth: []lipgloss.Color{
			"#2d1b2e", "#5c2a4d", "#8b3a62", "#c44d58", "#ff6b6b", "#feca57", "#fff5b7",
		},
	}

	ThemeRetroGreen = Theme{
		Name:    "retro",
		Primary: lipgloss.Color("#00ff00"),
		Accent:  lipgloss.Color("#88ff88"),
		Muted:   lipgloss.Color("#005500"),
		Warning: lipgloss.Color("#ffff00"),
		Depth: []lipgloss.Color{
			"#003300", "#005500", "#007700", "#00aa00", "#00cc00", "#00ff00", "#ccffcc",
		},
	}

	// Default theme
	CurrentTheme = ThemeOcean

	// All available themes
	Themes = []Theme{
		ThemeOcean,
		ThemeSunset,
		ThemeRetroGreen,
	}
)

// GetTheme returns a theme by name
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeOcean
}

// SetTheme changes the current theme
func SetTheme(name string) {
	CurrentTheme = GetTheme(name)
}

// NextTheme switches to the theme after the current one.
func NextTheme() {
	for i, t := range Themes {
		if t.Name == CurrentTheme.Name {
			CurrentTheme = Themes[(i+1)%len(Themes)]
			return
		}
	}
	CurrentTheme = Themes[0]
}

// DepthColor picks a color for a depth normalized to [0, 1].
func (t Theme) DepthColor(norm float64) lipgloss.Color {
	idx := int(norm * float64(len(t.Depth)-1))
	idx = max(0, min(len(t.Depth)-1, idx))
	return t.Depth[idx]
}
