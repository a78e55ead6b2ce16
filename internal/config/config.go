package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTick             = 100 * time.Millisecond
	DefaultReduceTimeout    = 200 * time.Millisecond
	DefaultRestoreTimeout   = 3 * time.Second
	DefaultForceResyncTicks = 600
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Ducking Ducking      `yaml:"ducking"`
	Daemon  DaemonConfig `yaml:"daemon"`
	Server  ServerConfig `yaml:"server"`
	Log     LogConfig    `yaml:"log"`
}

// Ducking is the part of the configuration the control loop consumes. It is
// handed to the daemon by value and replaced wholesale on every update.
type Ducking struct {
	Targets        []string `yaml:"targets" json:"targets"`
	Exclude        []string `yaml:"exclude" json:"exclude"`
	Sensitivity    float32  `yaml:"sensitivity" json:"sensitivity"`
	RestoreVolume  float32  `yaml:"restore_volume" json:"restoreVolume"`
	ReduceVolume   float32  `yaml:"reduce_volume" json:"reduceVolume"`
	TransformSpeed float32  `yaml:"transform_speed" json:"transformSpeed"`
}

type DaemonConfig struct {
	Tick             time.Duration `yaml:"tick"`
	ReduceTimeout    time.Duration `yaml:"reduce_timeout"`
	RestoreTimeout   time.Duration `yaml:"restore_timeout"`
	ForceResyncTicks int           `yaml:"force_resync_ticks"`
}

type ServerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	AuthToken         string        `yaml:"auth_token"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	MaxConnections    int           `yaml:"max_connections"`
	Privacy           PrivacyConfig `yaml:"privacy"`
}

// PrivacyConfig controls what the status server reveals about sessions.
type PrivacyConfig struct {
	MaskPaths  bool     `yaml:"mask_paths"`
	MaskPIDs   bool     `yaml:"mask_pids"`
	HiddenApps []string `yaml:"hidden_apps"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultDucking() Ducking {
	return Ducking{
		Targets:        []string{},
		Exclude:        []string{},
		Sensitivity:    0.1,
		RestoreVolume:  1.0,
		ReduceVolume:   0.5,
		TransformSpeed: 0.05,
	}
}

func DefaultDaemon() DaemonConfig {
	return DaemonConfig{
		Tick:             DefaultTick,
		ReduceTimeout:    DefaultReduceTimeout,
		RestoreTimeout:   DefaultRestoreTimeout,
		ForceResyncTicks: DefaultForceResyncTicks,
	}
}

func defaultConfig() *Config {
	return &Config{
		Ducking: DefaultDucking(),
		Daemon:  DefaultDaemon(),
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              7878,
			BroadcastThrottle: 250 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
			MaxConnections:    16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file does
// not exist yet. Any other read or parse error is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Ducking.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Daemon.Tick <= 0 {
		errs = append(errs, fmt.Errorf("%w: daemon.tick must be positive", ErrInvalidConfig))
	}
	if c.Daemon.ReduceTimeout < 0 || c.Daemon.RestoreTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: daemon timeouts must not be negative", ErrInvalidConfig))
	}
	if c.Daemon.ForceResyncTicks <= 0 {
		errs = append(errs, fmt.Errorf("%w: daemon.force_resync_ticks must be positive", ErrInvalidConfig))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port))
	}
	if c.Server.Enabled && c.Server.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: server.snapshot_interval must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Validate checks that every level and the transform speed is in [0, 1].
// NaN is rejected.
func (d Ducking) Validate() error {
	var errs []error
	check := func(name string, v float32) {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("%w: ducking.%s = %v, want [0, 1]", ErrInvalidConfig, name, v))
		}
	}
	check("sensitivity", d.Sensitivity)
	check("restore_volume", d.RestoreVolume)
	check("reduce_volume", d.ReduceVolume)
	check("transform_speed", d.TransformSpeed)
	return errors.Join(errs...)
}

// Clone returns a copy that shares no slices with d.
func (d Ducking) Clone() Ducking {
	d.Targets = slices.Clone(d.Targets)
	d.Exclude = slices.Clone(d.Exclude)
	return d
}

// ToggleTarget returns a copy of d with name added to the target list, or
// removed if it was already there.
func (d Ducking) ToggleTarget(name string) Ducking {
	out := d.Clone()
	out.Targets = toggle(out.Targets, name)
	return out
}

// ToggleExclude is ToggleTarget for the exclude list.
func (d Ducking) ToggleExclude(name string) Ducking {
	out := d.Clone()
	out.Exclude = toggle(out.Exclude, name)
	return out
}

func toggle(list []string, name string) []string {
	if slices.Contains(list, name) {
		return slices.DeleteFunc(list, func(n string) bool { return n == name })
	}
	return append(list, name)
}
