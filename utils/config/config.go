// Package config loads the YAML scenario configuration consumed by setup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Input names the on-disk sources setup reads: the traffic flow XML file
// (§6) and, optionally, a pre-built road map snapshot. The road-map library
// itself is an external collaborator (SPEC_FULL.md §1); this module only
// needs to know where to find its artifacts.
type Input struct {
	FlowFile string `yaml:"flow_file"`
	MapFile  string `yaml:"map_file,omitempty"`
}

// ControlStep bounds the simulated tick range: ticks run over
// [Start, Start+Total) at Interval seconds apart.
type ControlStep struct {
	Start    int32   `yaml:"start"`
	Total    int32   `yaml:"total"`
	Interval float64 `yaml:"interval"`
}

// Control holds the step schedule plus the endless-traffic toggle (§4.9)
// and the seed that makes a run reproducible (§5 Determinism).
type Control struct {
	Step           ControlStep `yaml:"step"`
	EndlessTraffic bool        `yaml:"endless_traffic,omitempty"`
	Seed           uint64      `yaml:"seed"`
}

// Config is the root of the YAML scenario file.
type Config struct {
	Input   Input   `yaml:"input"`
	Control Control `yaml:"control"`
}

// Load reads and parses a scenario config file. Malformed YAML is a
// ConfigError surfaced at setup (§7); it is never retried or caught locally.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
