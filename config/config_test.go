package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Labels)
	assert.Empty(t, cfg.Rules)
	assert.Empty(t, cfg.Areas)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labelgraph.yaml")

	content := `
labels:
  bedroom:
    parents: [upstairs]
  bed:
    parents: [bedroom]
label_rules:
  cold: label(winter) and not label(heated)
areas:
  - upstairs
nats:
  url: nats://localhost:4222
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"upstairs"}, cfg.Labels["bedroom"].Parents)
	assert.Equal(t, []string{"bedroom"}, cfg.Labels["bed"].Parents)
	assert.Equal(t, "label(winter) and not label(heated)", cfg.Rules["cold"])
	assert.Equal(t, []string{"upstairs"}, cfg.Areas)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels: [not, a, map]"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "empty config valid",
			mutate: func(*Config) {},
		},
		{
			name: "empty label id",
			mutate: func(c *Config) {
				c.Labels[""] = LabelConfig{Parents: []string{"x"}}
			},
			wantErr: true,
		},
		{
			name: "empty rule id",
			mutate: func(c *Config) {
				c.Rules[""] = "true"
			},
			wantErr: true,
		},
		{
			name: "empty rule expression",
			mutate: func(c *Config) {
				c.Rules["cold"] = ""
			},
			wantErr: true,
		},
		{
			name: "empty area id",
			mutate: func(c *Config) {
				c.Areas = []string{""}
			},
			wantErr: true,
		},
		{
			name: "special ids pass validation",
			// The registry drops them with a diagnostic instead.
			mutate: func(c *Config) {
				c.Labels["zone:home"] = LabelConfig{Parents: []string{"x"}}
				c.Rules["zone:home"] = "true"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	cfg := &Config{
		Labels: map[string]LabelConfig{
			"bedroom": {Parents: []string{"upstairs"}},
		},
		Rules: map[string]string{"cold": "label(winter)"},
		Areas: []string{"upstairs"},
	}

	settings := cfg.Settings()
	assert.Equal(t, []string{"upstairs"}, settings.Parents["bedroom"])
	assert.Equal(t, "label(winter)", settings.Rules["cold"])
	assert.Equal(t, []string{"upstairs"}, settings.Areas)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Labels["bedroom"] = LabelConfig{Parents: []string{"upstairs"}}
	base.Areas = []string{"upstairs"}
	base.NATS.URL = "nats://base:4222"

	overlay := &Config{
		Labels: map[string]LabelConfig{
			"bedroom": {Parents: []string{"first_floor"}},
			"kitchen": {Parents: []string{"first_floor"}},
		},
		Rules: map[string]string{"cold": "label(winter)"},
		Areas: []string{"upstairs", "kitchen"},
	}

	base.Merge(overlay)

	assert.Equal(t, []string{"first_floor"}, base.Labels["bedroom"].Parents)
	assert.Equal(t, []string{"first_floor"}, base.Labels["kitchen"].Parents)
	assert.Equal(t, "label(winter)", base.Rules["cold"])
	assert.Equal(t, []string{"upstairs", "kitchen"}, base.Areas)
	assert.Equal(t, "nats://base:4222", base.NATS.URL)

	base.Merge(nil)
	assert.Len(t, base.Labels, 2)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "labelgraph.yaml")

	cfg := DefaultConfig()
	cfg.Labels["bedroom"] = LabelConfig{Parents: []string{"upstairs"}}
	cfg.Rules["cold"] = "label(winter)"
	cfg.Areas = []string{"upstairs"}
	cfg.NATS.URL = "nats://localhost:4222"

	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Labels, loaded.Labels)
	assert.Equal(t, cfg.Rules, loaded.Rules)
	assert.Equal(t, cfg.Areas, loaded.Areas)
	assert.Equal(t, cfg.NATS, loaded.NATS)
}
