// Package config loads the orchestrator's configuration document
// (servers/config.yml) into a typed structure, applying defaults for every
// field the document omits.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the orchestrator configuration: the field set of spec §6, plus
// an extra worldFolder field on each static server.
type Config struct {
	JavaPath                 string `yaml:"javaPath"`
	DefaultFallbackServer    string `yaml:"defaultFallbackServer"`
	HealthCheckIntervalSeconds int  `yaml:"healthCheckIntervalSeconds"`
	ProcessStartTimeoutSeconds int  `yaml:"processStartTimeoutSeconds"`

	DynamicSpawning DynamicSpawningConfig   `yaml:"dynamicSpawning"`
	PortAllocation  PortAllocationConfig    `yaml:"portAllocation"`
	StaticServers   map[string]StaticServerConfig `yaml:"staticServers"`
	Templates       map[string]TemplateConfig     `yaml:"templates"`
}

type DynamicSpawningConfig struct {
	Enabled         bool `yaml:"enabled"`
	AutoCleanup     bool `yaml:"autoCleanup"`
	MaxConcurrent   int  `yaml:"maxConcurrent"`
	MinAvailablePorts int `yaml:"minAvailablePorts"`
}

type PortAllocationConfig struct {
	StaticRangeStart  int `yaml:"staticRangeStart"`
	StaticRangeEnd    int `yaml:"staticRangeEnd"`
	DynamicRangeStart int `yaml:"dynamicRangeStart"`
	DynamicRangeEnd   int `yaml:"dynamicRangeEnd"`
}

type StaticServerConfig struct {
	Port        int               `yaml:"port"`
	MaxPlayers  int               `yaml:"maxPlayers"`
	AlwaysOn    bool              `yaml:"alwaysOn"`
	WorldFolder string            `yaml:"worldFolder"`
	Memory      string            `yaml:"memory"`
	JVMArgs     []string          `yaml:"jvmArgs"`
	Environment map[string]string `yaml:"environment"`
}

// TemplateConfig holds the per-template defaults a config.yml document may
// declare alongside (or instead of) the template's own manifest.
//
// GracefulShutdownTimeoutSeconds is intentionally never read by the
// shutdown path — the supervisor resolves the graceful deadline from the
// template manifest only. Preserved from the original; see DESIGN.md open
// question #2.
type TemplateConfig struct {
	DisplayName                    string            `yaml:"displayName"`
	MaxPlayers                     int               `yaml:"maxPlayers"`
	PortRangeStart                 int               `yaml:"portRangeStart"`
	PortRangeEnd                   int               `yaml:"portRangeEnd"`
	Memory                         string            `yaml:"memory"`
	WorldReset                     bool              `yaml:"worldReset"`
	AutoCleanupDelaySeconds        int               `yaml:"autoCleanupDelaySeconds"`
	GracefulShutdownTimeoutSeconds int               `yaml:"gracefulShutdownTimeoutSeconds"`
	JVMArgs                        []string          `yaml:"jvmArgs"`
	Environment                    map[string]string `yaml:"environment"`
}

// Default returns a configuration seeded with the spec's documented
// defaults, used as the base before a config.yml is unmarshalled over it.
func Default() *Config {
	return &Config{
		JavaPath:                   "java",
		DefaultFallbackServer:      "lobby",
		HealthCheckIntervalSeconds: 30,
		ProcessStartTimeoutSeconds: 60,
		DynamicSpawning: DynamicSpawningConfig{
			Enabled:           true,
			AutoCleanup:       true,
			MaxConcurrent:     50,
			MinAvailablePorts: 10,
		},
		PortAllocation: PortAllocationConfig{
			StaticRangeStart:  6000,
			StaticRangeEnd:    6050,
			DynamicRangeStart: 6100,
			DynamicRangeEnd:   6500,
		},
		StaticServers: map[string]StaticServerConfig{
			"lobby": {
				Port:       6000,
				MaxPlayers: 100,
				AlwaysOn:   true,
				Memory:     "2G",
			},
		},
		Templates: map[string]TemplateConfig{
			"bedwars": {
				PortRangeStart: 6100,
				PortRangeEnd:   6200,
				Memory:         "2G",
			},
		},
	}
}

// Load reads and unmarshals the document at path, creating it with the
// default configuration first if it does not yet exist — matching the
// original's "create and save default, else load" behaviour.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
