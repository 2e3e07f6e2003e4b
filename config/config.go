// Package config provides configuration loading for labelgraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/labelgraph/label"
)

// Config is the complete labelgraph configuration.
type Config struct {
	// Labels maps label id to its hierarchy declaration.
	Labels map[string]LabelConfig `yaml:"labels"`

	// Rules maps label id to a derived-label rule expression.
	Rules map[string]string `yaml:"label_rules"`

	// Areas lists label ids that back synthetic areas.
	Areas []string `yaml:"areas"`

	NATS NATSConfig `yaml:"nats"`
}

// LabelConfig declares one label's place in the hierarchy.
type LabelConfig struct {
	// Parents lists the label ids this label directly depends on.
	Parents []string `yaml:"parents"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (empty = run without persistence or
	// external notifications).
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Labels: map[string]LabelConfig{},
		Rules:  map[string]string{},
		Areas:  nil,
		NATS:   NATSConfig{URL: ""},
	}
}

// Validate checks structural validity. Semantic problems inside
// individual entries (unknown parents, unparseable rules, special ids)
// are not errors: the engine drops those entries with a diagnostic and
// keeps going, so one bad label never blocks the rest.
func (c *Config) Validate() error {
	for labelID := range c.Labels {
		if labelID == "" {
			return fmt.Errorf("labels: empty label id")
		}
	}
	for labelID, source := range c.Rules {
		if labelID == "" {
			return fmt.Errorf("label_rules: empty label id")
		}
		if source == "" {
			return fmt.Errorf("label_rules: empty expression for %s", labelID)
		}
	}
	for _, labelID := range c.Areas {
		if labelID == "" {
			return fmt.Errorf("areas: empty label id")
		}
	}
	return nil
}

// Merge overlays non-empty fields from other onto this config. Label,
// rule, and area declarations merge per key; the NATS URL is replaced
// when other sets one.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	for labelID, lc := range other.Labels {
		if c.Labels == nil {
			c.Labels = make(map[string]LabelConfig)
		}
		c.Labels[labelID] = lc
	}
	for labelID, source := range other.Rules {
		if c.Rules == nil {
			c.Rules = make(map[string]string)
		}
		c.Rules[labelID] = source
	}
	for _, labelID := range other.Areas {
		found := false
		for _, existing := range c.Areas {
			if existing == labelID {
				found = true
				break
			}
		}
		if !found {
			c.Areas = append(c.Areas, labelID)
		}
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
}

// Settings converts the configuration into the registry's snapshot
// form.
func (c *Config) Settings() label.Settings {
	parents := make(map[string][]string, len(c.Labels))
	for labelID, lc := range c.Labels {
		parents[labelID] = lc.Parents
	}
	return label.Settings{
		Parents: parents,
		Rules:   c.Rules,
		Areas:   c.Areas,
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
