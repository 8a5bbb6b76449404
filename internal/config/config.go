package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/meshsim/internal/compute"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/sim"
)

const (
	DefaultDt         = 0.016
	DefaultTicks      = 600
	DefaultBackend    = "cpu"
	DefaultFrameEvery = 10
)

type Config struct {
	Grid       GridConfig    `yaml:"grid"`
	Physics    PhysicsConfig `yaml:"physics"`
	Dt         float64       `yaml:"dt"`
	Ticks      int           `yaml:"ticks"`
	Backend    string        `yaml:"backend"`
	Seed       int64         `yaml:"seed"`
	FrameEvery int           `yaml:"frame_every"`
}

type GridConfig struct {
	GroupsX  int `yaml:"groups_x"`
	GroupsY  int `yaml:"groups_y"`
	ThreadsX int `yaml:"threads_x"`
	ThreadsY int `yaml:"threads_y"`
}

type PhysicsConfig struct {
	Mass          float64 `yaml:"mass"`
	Damping       float64 `yaml:"damping"`
	Stiffness     float64 `yaml:"stiffness"`
	RestLength    float64 `yaml:"rest_length"`
	MaxTouchForce float64 `yaml:"max_touch_force"`
}

func DefaultConfig() *Config {
	tiles := dynamo.DefaultTiles()
	p := dynamo.DefaultParams()
	return &Config{
		Grid: GridConfig{
			GroupsX:  tiles.GroupsX,
			GroupsY:  tiles.GroupsY,
			ThreadsX: tiles.ThreadsX,
			ThreadsY: tiles.ThreadsY,
		},
		Physics: PhysicsConfig{
			Mass:          p.Mass,
			Damping:       p.Damping,
			Stiffness:     p.Stiffness,
			RestLength:    p.RestLength,
			MaxTouchForce: p.MaxTouchForce,
		},
		Dt:         DefaultDt,
		Ticks:      DefaultTicks,
		Backend:    DefaultBackend,
		Seed:       1,
		FrameEvery: DefaultFrameEvery,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Tiles() dynamo.TileConfig {
	return dynamo.TileConfig{
		GroupsX:  c.Grid.GroupsX,
		GroupsY:  c.Grid.GroupsY,
		ThreadsX: c.Grid.ThreadsX,
		ThreadsY: c.Grid.ThreadsY,
	}
}

func (c *Config) Params() dynamo.Params {
	return dynamo.Params{
		Mass:          c.Physics.Mass,
		Damping:       c.Physics.Damping,
		Stiffness:     c.Physics.Stiffness,
		RestLength:    c.Physics.RestLength,
		MaxTouchForce: c.Physics.MaxTouchForce,
	}
}

// SetParams copies p into the physics section.
func (c *Config) SetParams(p dynamo.Params) {
	c.Physics = PhysicsConfig{
		Mass:          p.Mass,
		Damping:       p.Damping,
		Stiffness:     p.Stiffness,
		RestLength:    p.RestLength,
		MaxTouchForce: p.MaxTouchForce,
	}
}

// Validate checks everything New would reject, plus the run settings.
func (c *Config) Validate() error {
	if err := c.Tiles().Validate(); err != nil {
		return err
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if !(c.Dt > 0) {
		return fmt.Errorf("dt %v must be positive: %w", c.Dt, dynamo.ErrParameterBounds)
	}
	if c.Ticks < 0 {
		return fmt.Errorf("ticks %d must not be negative: %w", c.Ticks, dynamo.ErrParameterBounds)
	}
	if c.FrameEvery < 0 {
		return fmt.Errorf("frame_every %d must not be negative: %w", c.FrameEvery, dynamo.ErrParameterBounds)
	}
	if _, err := compute.Select(c.Backend); err != nil {
		return err
	}
	return nil
}

// ToSim builds the simulation config and the backend option it names.
func (c *Config) ToSim() (sim.Config, []sim.Option, error) {
	if err := c.Validate(); err != nil {
		return sim.Config{}, nil, err
	}
	backend, err := compute.Select(c.Backend)
	if err != nil {
		return sim.Config{}, nil, err
	}
	cfg := sim.Config{
		Tiles:         c.Tiles(),
		Params:        c.Params(),
		ValidateState: true,
	}
	return cfg, []sim.Option{sim.WithBackend(backend)}, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
