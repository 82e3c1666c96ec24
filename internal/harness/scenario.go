// Package harness implements the fleet disconnect/reconnect test battery
// (spec.md C10): it launches a fleet of device clients, severs a subset
// of their connections, measures outbox growth and drain behavior, and
// queries the store for end-to-end latency.
package harness

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one disconnect/reconnect test case.
type Scenario struct {
	DisconnectPercent int `yaml:"disconnect_percent"`
	DurationMinutes   int `yaml:"duration_minutes"`
}

// DefaultScenarios is the battery named in spec.md §4.7.
var DefaultScenarios = []Scenario{
	{DisconnectPercent: 20, DurationMinutes: 5},
	{DisconnectPercent: 30, DurationMinutes: 10},
	{DisconnectPercent: 50, DurationMinutes: 15},
	{DisconnectPercent: 20, DurationMinutes: 30},
	{DisconnectPercent: 50, DurationMinutes: 30},
}

// scenarioFile is the on-disk shape of a scenarios YAML file.
type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario battery from path, falling back to
// DefaultScenarios if path is empty.
func LoadScenarios(path string) ([]Scenario, error) {
	if path == "" {
		return DefaultScenarios, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Scenarios) == 0 {
		return DefaultScenarios, nil
	}
	return f.Scenarios, nil
}

// Duration returns the scenario's duration as a time.Duration.
func (s Scenario) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
