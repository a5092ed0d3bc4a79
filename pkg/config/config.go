package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pciplan/pkg/model"
)

// Environment variables that override the file after it is loaded.
const (
	EnvReuseDistance = "PCIPLAN_REUSE_DISTANCE"
	EnvNetwork       = "PCIPLAN_NETWORK"
	EnvDBPath        = "PCIPLAN_DB_PATH"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration.
type Config struct {
	Planning PlanningConfig `yaml:"planning"`
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PlanningConfig holds the run parameters of the engine.
type PlanningConfig struct {
	Network        string   `yaml:"network"`
	ReuseDistance  Distance `yaml:"reuse_distance"`
	InheritModulus bool     `yaml:"inherit_modulus"`
	Cache          bool     `yaml:"cache"`
	Timeout        Duration `yaml:"timeout"` // 0 disables the run deadline
}

// NetworkType parses the configured network.
func (p PlanningConfig) NetworkType() (model.NetworkType, error) {
	return model.ParseNetworkType(p.Network)
}

// InputConfig holds the snapshot and request locations.
type InputConfig struct {
	Cells   string `yaml:"cells"`
	Request string `yaml:"request"`
}

// OutputConfig holds the result writers.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	GeoJSON   bool   `yaml:"geojson"`
	Shapefile bool   `yaml:"shapefile"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // plan runs older than this are pruned
}

// LogConfig holds logging settings.
type LogConfig struct {
	App       LogSettings `yaml:"app"`
	Decisions LogSettings `yaml:"decisions"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
	Trace bool   `yaml:"trace,omitempty"`
}

// MetricsConfig holds the Prometheus textfile output.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Planning: PlanningConfig{
			Network:        string(model.LTE),
			ReuseDistance:  Distance(3000),
			InheritModulus: false,
			Cache:          true,
			Timeout:        Duration(10 * time.Minute),
		},
		Input: InputConfig{
			Cells:   "data/cells.csv",
			Request: "data/request.csv",
		},
		Output: OutputConfig{
			Dir:       "output",
			GeoJSON:   true,
			Shapefile: true,
		},
		DB: DBConfig{
			Path:      "data/pciplan.db",
			Retention: Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			App: LogSettings{
				Path:  "logs/pciplan.log",
				Level: "INFO",
			},
			Decisions: LogSettings{
				Path:  "logs/decisions.log",
				Level: "DEBUG",
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Textfile: "output/pciplan.prom",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
// Environment overrides and $VAR expansion in paths are applied after either.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides planning settings from the environment.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvReuseDistance)); v != "" {
		d, err := ParseReuseDistance(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReuseDistance, err)
		}
		cfg.Planning.ReuseDistance = d
	}
	if v := strings.TrimSpace(os.Getenv(EnvNetwork)); v != "" {
		cfg.Planning.Network = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		cfg.DB.Path = v
	}
	return nil
}

// ParseReuseDistance parses a reuse distance from the command line or the
// environment, where a bare number means kilometers.
func ParseReuseDistance(s string) (Distance, error) {
	s = strings.TrimSpace(s)
	if isBareNumber(s) {
		s += "km"
	}
	m, err := ParseDistance(s)
	if err != nil {
		return 0, err
	}
	if !(m > 0) {
		return 0, fmt.Errorf("reuse distance must be positive, got %q", s)
	}
	return Distance(m), nil
}

var bareNumber = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)

func isBareNumber(s string) bool {
	return bareNumber.MatchString(s)
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Input.Cells, &c.Input.Request, &c.Output.Dir, &c.DB.Path,
		&c.Log.App.Path, &c.Log.Decisions.Path, &c.Metrics.Textfile,
	} {
		*p = os.ExpandEnv(*p)
	}
}

// Validate checks the values the planner cannot run without.
func (c *Config) Validate() error {
	if _, err := c.Planning.NetworkType(); err != nil {
		return fmt.Errorf("%w: planning.network: %v", ErrInvalidConfig, err)
	}
	if c.Planning.ReuseDistance.Km() <= 0 {
		return fmt.Errorf("%w: planning.reuse_distance must be positive, got %v", ErrInvalidConfig, c.Planning.ReuseDistance.Km())
	}
	if c.Planning.Timeout < 0 {
		return fmt.Errorf("%w: planning.timeout must not be negative", ErrInvalidConfig)
	}
	for name, s := range map[string]LogSettings{"app": c.Log.App, "decisions": c.Log.Decisions} {
		if !validLevel(s.Level) {
			return fmt.Errorf("%w: log.%s.level %q", ErrInvalidConfig, name, s.Level)
		}
	}
	return nil
}

func validLevel(s string) bool {
	switch strings.ToUpper(s) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
		return true
	}
	return false
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pciplan configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)
# Environment overrides: PCIPLAN_REUSE_DISTANCE, PCIPLAN_NETWORK, PCIPLAN_DB_PATH

`)
	data = append(header, data...)

	reNetwork := regexp.MustCompile(`(?m)^(\s+)network:`)
	data = reNetwork.ReplaceAll(data, []byte("${1}# Options: LTE, NR\n${1}network:"))

	reLevel := regexp.MustCompile(`(?m)^(\s+)level:`)
	data = reLevel.ReplaceAll(data, []byte("${1}# Options: DEBUG, INFO, WARN, ERROR\n${1}level:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
