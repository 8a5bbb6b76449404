package config

import "sort"

var Presets = map[string]*Config{
	"calm": {
		Grid:    GridConfig{GroupsX: 15, GroupsY: 7, ThreadsX: 4, ThreadsY: 4},
		Physics: PhysicsConfig{Mass: 1, Damping: 0.98, Stiffness: 30, RestLength: 0.5, MaxTouchForce: 200},
		Dt: 0.016, Ticks: 600, Backend: "cpu", Seed: 1, FrameEvery: 10,
	},
	"jelly": {
		Grid:    GridConfig{GroupsX: 15, GroupsY: 7, ThreadsX: 4, ThreadsY: 4},
		Physics: PhysicsConfig{Mass: 2, Damping: 0.995, Stiffness: 8, RestLength: 0.5, MaxTouchForce: 120},
		Dt: 0.016, Ticks: 1200, Backend: "cpu", Seed: 1, FrameEvery: 10,
	},
	"stiff": {
		Grid:    GridConfig{GroupsX: 15, GroupsY: 7, ThreadsX: 4, ThreadsY: 4},
		Physics: PhysicsConfig{Mass: 0.5, Damping: 0.95, Stiffness: 90, RestLength: 0.5, MaxTouchForce: 400},
		Dt: 0.008, Ticks: 1200, Backend: "cpu", Seed: 1, FrameEvery: 20,
	},
	"tiny": {
		Grid:    GridConfig{GroupsX: 2, GroupsY: 2, ThreadsX: 4, ThreadsY: 4},
		Physics: PhysicsConfig{Mass: 1, Damping: 0.5, Stiffness: 10, RestLength: 1, MaxTouchForce: 100},
		Dt: 0.1, Ticks: 100, Backend: "serial", Seed: 1, FrameEvery: 1,
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
