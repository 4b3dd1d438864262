// Package config provides configuration management for the snapframe daemon
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the SNAPFRAME_ prefix. It manages the watched drop folder,
// the processed photo store, frame template storage, thumbnail sizing,
// write-stabilization timing, and the HTTP server.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Watch   WatchConfig   `yaml:"watch"`
	Storage StorageConfig `yaml:"storage"`
	Frames  FramesConfig  `yaml:"frames"`
	Server  ServerConfig  `yaml:"server"`
	Exports ExportsConfig `yaml:"exports"`
	Debug   bool          `yaml:"debug"`
}

// WatchConfig controls the ingestion pipeline.
type WatchConfig struct {
	Path            string   `yaml:"path"`
	AutoScan        bool     `yaml:"auto_scan"`
	FileTypes       []string `yaml:"file_types"`
	StabilizationMs int      `yaml:"stabilization_ms"`
	PollMs          int      `yaml:"poll_ms"`
}

// StorageConfig controls the processed photo store.
type StorageConfig struct {
	ProcessedDir    string `yaml:"processed_dir"`
	ThumbnailWidth  int    `yaml:"thumbnail_width"`
	ThumbnailHeight int    `yaml:"thumbnail_height"`
	MaxPhotosPage   int    `yaml:"max_photos_page"`
}

// FramesConfig controls frame template storage.
type FramesConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig controls the HTTP/websocket surface.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	EnableSocket bool   `yaml:"enable_socket"`
}

// ExportsConfig controls zip export packaging.
type ExportsConfig struct {
	Dir      string `yaml:"dir"`
	TTLHours int    `yaml:"ttl_hours"`
}

// DefaultFileTypes is the photo extension allow-list used when none is
// configured. Matches common raster formats plus the camera RAW extensions
// card readers produce.
var DefaultFileTypes = []string{".jpg", ".jpeg", ".png", ".tiff", ".cr2", ".nef", ".arw"}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle values set via viper that Unmarshal misses for slices and bools
	if viper.IsSet("watch.path") && config.Watch.Path == "" {
		config.Watch.Path = viper.GetString("watch.path")
	}
	if viper.IsSet("watch.file_types") && len(config.Watch.FileTypes) == 0 {
		config.Watch.FileTypes = viper.GetStringSlice("watch.file_types")
	}
	if viper.IsSet("watch.auto_scan") {
		config.Watch.AutoScan = viper.GetBool("watch.auto_scan")
	}
	if viper.IsSet("server.enable_socket") {
		config.Server.EnableSocket = viper.GetBool("server.enable_socket")
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(config *Config) {
	if len(config.Watch.FileTypes) == 0 {
		config.Watch.FileTypes = append([]string(nil), DefaultFileTypes...)
	}
	if config.Watch.StabilizationMs == 0 {
		config.Watch.StabilizationMs = 2000
	}
	if config.Watch.PollMs == 0 {
		config.Watch.PollMs = 100
	}
	if !viper.IsSet("watch.auto_scan") {
		config.Watch.AutoScan = true
	}

	if config.Storage.ProcessedDir == "" {
		config.Storage.ProcessedDir = "processed_photos"
	}
	if config.Storage.ThumbnailWidth == 0 {
		config.Storage.ThumbnailWidth = 300
	}
	if config.Storage.ThumbnailHeight == 0 {
		config.Storage.ThumbnailHeight = 300
	}
	if config.Storage.MaxPhotosPage == 0 {
		config.Storage.MaxPhotosPage = 50
	}

	if config.Frames.Dir == "" {
		config.Frames.Dir = "frames"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 5000
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if !viper.IsSet("server.enable_socket") {
		config.Server.EnableSocket = true
	}

	if config.Exports.Dir == "" {
		config.Exports.Dir = "exports"
	}
	if config.Exports.TTLHours == 0 {
		config.Exports.TTLHours = 72
	}
}

// Stabilization returns the write-stabilization window as a duration.
func (c *WatchConfig) Stabilization() time.Duration {
	return time.Duration(c.StabilizationMs) * time.Millisecond
}

// Poll returns the stabilization poll interval as a duration.
func (c *WatchConfig) Poll() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// ThumbsDir returns the thumbnail subdirectory of the processed store.
func (c *StorageConfig) ThumbsDir() string {
	return filepath.Join(c.ProcessedDir, "thumbnails")
}

// TemplatesPath returns the path of the template persistence document.
func (c *FramesConfig) TemplatesPath() string {
	return filepath.Join(c.Dir, "templates.json")
}
