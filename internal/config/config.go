// Package config provides configuration types, defaults and loading for cuebox.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. CUEBOX_CATALOG_DIR
const EnvPrefix = "CUEBOX"

// Config holds all configuration options for cuebox.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Periodic  PeriodicConfig  `mapstructure:"periodic"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Log       LogConfig       `mapstructure:"log"`
	UI        UIConfig        `mapstructure:"ui"`
}

// CatalogConfig locates the clip directory.
type CatalogConfig struct {
	Dir string `mapstructure:"dir"`
}

// SchedulerConfig tunes playback pacing.
type SchedulerConfig struct {
	GuardInterval time.Duration `mapstructure:"guard_interval"`
	PollInterval  time.Duration `mapstructure:"poll_interval"` // 0 disables the fallback ticker
	EventBuffer   int           `mapstructure:"event_buffer"`
}

// BackendConfig picks the initial backend and device.
type BackendConfig struct {
	Default       string `mapstructure:"default"` // "mixer" or "stream"
	DeviceIndex   int    `mapstructure:"device_index"`
	StreamCommand string `mapstructure:"stream_command"` // "", "aplay" or "paplay"; empty auto-detects
}

// AudioConfig holds output format options.
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	Volume     int `mapstructure:"volume"`
}

// PeriodicConfig holds the initial periodic interval shown in the UI.
type PeriodicConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
}

// RemoteConfig enables the WebSocket control endpoint.
type RemoteConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
	MDNS   bool   `mapstructure:"mdns"`
	Name   string `mapstructure:"name"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// UIConfig toggles the terminal UI.
type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("catalog.dir", "./audio")
	v.SetDefault("scheduler.guard_interval", 100*time.Millisecond)
	v.SetDefault("scheduler.poll_interval", time.Duration(0))
	v.SetDefault("scheduler.event_buffer", 64)
	v.SetDefault("backend.default", "mixer")
	v.SetDefault("backend.device_index", 0)
	v.SetDefault("backend.stream_command", "")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.volume", 100)
	v.SetDefault("periodic.interval_ms", 1000)
	v.SetDefault("remote.listen", "")
	v.SetDefault("remote.mdns", false)
	v.SetDefault("remote.name", defaultRemoteName())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "cuebox.log")
	v.SetDefault("ui.enabled", true)
}

func defaultRemoteName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "cuebox"
	}
	return host + "-cuebox"
}

// Configure sets defaults, env binding and config file search paths on v.
// An explicit path wins over the search paths.
func Configure(v *viper.Viper, path string) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("cuebox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "cuebox"))
	}
}

// Load reads the config file if present and unmarshals v.
// A missing file in the search paths is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Catalog.Dir == "" {
		return fmt.Errorf("catalog.dir is required")
	}
	if c.Scheduler.GuardInterval < 0 {
		return fmt.Errorf("scheduler.guard_interval must not be negative, got %v", c.Scheduler.GuardInterval)
	}
	if c.Scheduler.PollInterval < 0 {
		return fmt.Errorf("scheduler.poll_interval must not be negative, got %v", c.Scheduler.PollInterval)
	}
	if c.Scheduler.EventBuffer < 1 {
		return fmt.Errorf("scheduler.event_buffer must be at least 1, got %d", c.Scheduler.EventBuffer)
	}
	switch strings.ToLower(c.Backend.Default) {
	case "mixer", "stream":
	default:
		return fmt.Errorf("backend.default must be mixer or stream, got %q", c.Backend.Default)
	}
	switch c.Backend.StreamCommand {
	case "", "aplay", "paplay":
	default:
		return fmt.Errorf("backend.stream_command must be aplay or paplay, got %q", c.Backend.StreamCommand)
	}
	if c.Backend.DeviceIndex < 0 {
		return fmt.Errorf("backend.device_index must not be negative, got %d", c.Backend.DeviceIndex)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("audio.volume must be between 0 and 100, got %d", c.Audio.Volume)
	}
	if c.Periodic.IntervalMs <= 0 {
		return fmt.Errorf("periodic.interval_ms must be positive, got %d", c.Periodic.IntervalMs)
	}
	if c.Remote.MDNS && c.Remote.Listen == "" {
		return fmt.Errorf("remote.mdns requires remote.listen")
	}
	return nil
}
