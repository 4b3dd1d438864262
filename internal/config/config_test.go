package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultFileTypes, cfg.Watch.FileTypes)
	assert.Equal(t, 2000, cfg.Watch.StabilizationMs)
	assert.Equal(t, 100, cfg.Watch.PollMs)
	assert.True(t, cfg.Watch.AutoScan)
	assert.Equal(t, "processed_photos", cfg.Storage.ProcessedDir)
	assert.Equal(t, 300, cfg.Storage.ThumbnailWidth)
	assert.Equal(t, 300, cfg.Storage.ThumbnailHeight)
	assert.Equal(t, "frames", cfg.Frames.Dir)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.True(t, cfg.Server.EnableSocket)
	assert.Equal(t, 72, cfg.Exports.TTLHours)
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	doc := map[string]interface{}{
		"watch": map[string]interface{}{
			"path":             "/mnt/card",
			"file_types":       []string{".jpg", ".png"},
			"stabilization_ms": 500,
			"auto_scan":        false,
		},
		"server": map[string]interface{}{
			"port": 8080,
		},
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "snapframe.yml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0644))

	viper.SetConfigFile(cfgPath)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/mnt/card", cfg.Watch.Path)
	assert.Equal(t, []string{".jpg", ".png"}, cfg.Watch.FileTypes)
	assert.Equal(t, 500, cfg.Watch.StabilizationMs)
	assert.False(t, cfg.Watch.AutoScan)
	assert.Equal(t, 8080, cfg.Server.Port)

	// Untouched sections still get defaults
	assert.Equal(t, 100, cfg.Watch.PollMs)
	assert.Equal(t, 300, cfg.Storage.ThumbnailWidth)
}

func TestDurationAccessors(t *testing.T) {
	wc := WatchConfig{StabilizationMs: 2000, PollMs: 100}

	assert.Equal(t, 2*time.Second, wc.Stabilization())
	assert.Equal(t, 100*time.Millisecond, wc.Poll())
}

func TestPathAccessors(t *testing.T) {
	sc := StorageConfig{ProcessedDir: "processed_photos"}
	assert.Equal(t, filepath.Join("processed_photos", "thumbnails"), sc.ThumbsDir())

	fc := FramesConfig{Dir: "frames"}
	assert.Equal(t, filepath.Join("frames", "templates.json"), fc.TemplatesPath())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name       string
		mutate     func(*Config)
		wantValid  bool
		wantErrors int
	}{
		{
			name:      "defaults are valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "extension without dot is an error",
			mutate: func(c *Config) {
				c.Watch.FileTypes = []string{"jpg"}
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "negative stabilization is an error",
			mutate: func(c *Config) {
				c.Watch.StabilizationMs = -1
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "zero poll interval is an error",
			mutate: func(c *Config) {
				c.Watch.PollMs = 0
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "out of range port is an error",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "zero thumbnail box is an error",
			mutate: func(c *Config) {
				c.Storage.ThumbnailWidth = 0
			},
			wantValid:  false,
			wantErrors: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resetViper(t)
			cfg, err := Load()
			require.NoError(t, err)

			tc.mutate(cfg)
			result := Validate(cfg)

			assert.Equal(t, tc.wantValid, result.Valid)
			assert.Len(t, result.Errors, tc.wantErrors)
		})
	}
}

func TestValidateMissingWatchPathIsWarning(t *testing.T) {
	resetViper(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Watch.Path = "/does/not/exist"
	result := Validate(cfg)

	assert.True(t, result.Valid)
	assert.True(t, result.HasWarnings())
	assert.Contains(t, result.String(), "watch.path")
}
