// Package config handles loading, defaulting, and validation of the Earshot
// TOML configuration file. The client and the daemon read the same file;
// each uses the sections that concern it.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Client  ClientConfig  `toml:"client"  json:"client"`
	UI      UIConfig      `toml:"ui"      json:"ui"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Server  ServerConfig  `toml:"server"  json:"server"`
	Catalog CatalogConfig `toml:"catalog" json:"catalog"`
	Demo    DemoConfig    `toml:"demo"    json:"demo"`
}

type ClientConfig struct {
	URL                string `toml:"url"                  json:"url"`
	ReconnectDelayMs   int    `toml:"reconnect_delay_ms"   json:"reconnect_delay_ms"`
	ReconnectJitterMs  int    `toml:"reconnect_jitter_ms"  json:"reconnect_jitter_ms"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds" json:"read_timeout_seconds"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds" json:"http_timeout_seconds"`
	CountdownFrom      int    `toml:"countdown_from"       json:"countdown_from"`
}

type UIConfig struct {
	Color                bool `toml:"color"                  json:"color"`
	NotificationAppearMs int  `toml:"notification_appear_ms" json:"notification_appear_ms"`
	NotificationHideMs   int  `toml:"notification_hide_ms"   json:"notification_hide_ms"`
	NotificationRemoveMs int  `toml:"notification_remove_ms" json:"notification_remove_ms"`
	ReloadDelayMs        int  `toml:"reload_delay_ms"        json:"reload_delay_ms"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type CatalogConfig struct {
	Path string `toml:"path" json:"path"`
	Seed bool   `toml:"seed" json:"seed"`
}

type DemoConfig struct {
	RecordingSeconds  int     `toml:"recording_seconds"   json:"recording_seconds"`
	EarlyGuessSeconds int     `toml:"early_guess_seconds" json:"early_guess_seconds"`
	ProgressStep      int     `toml:"progress_step"       json:"progress_step"`
	ProcessingMs      int     `toml:"processing_ms"       json:"processing_ms"`
	MatchRate         float64 `toml:"match_rate"          json:"match_rate"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Client: ClientConfig{
			URL:                "http://127.0.0.1:8080",
			ReconnectDelayMs:   3000,
			ReconnectJitterMs:  0,
			ReadTimeoutSeconds: 0,
			HTTPTimeoutSeconds: 5,
			CountdownFrom:      3,
		},
		UI: UIConfig{
			Color:                true,
			NotificationAppearMs: 100,
			NotificationHideMs:   3000,
			NotificationRemoveMs: 300,
			ReloadDelayMs:        1500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Catalog: CatalogConfig{
			Path: "data/songs.db",
			Seed: true,
		},
		Demo: DemoConfig{
			RecordingSeconds:  10,
			EarlyGuessSeconds: 3,
			ProgressStep:      10,
			ProcessingMs:      1500,
			MatchRate:         0.7,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadOptional is Load for callers that can run on defaults: a missing
// file is not an error.
func LoadOptional(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func validate(cfg Config) error {
	if cfg.Client.URL == "" {
		return errors.New("client.url must not be empty")
	}
	if cfg.Client.ReconnectDelayMs < 0 {
		return errors.New("client.reconnect_delay_ms must be >= 0")
	}
	if cfg.Client.ReconnectJitterMs < 0 || cfg.Client.ReconnectJitterMs > cfg.Client.ReconnectDelayMs {
		return errors.New("client.reconnect_jitter_ms must be between 0 and reconnect_delay_ms")
	}
	if cfg.Client.ReadTimeoutSeconds < 0 {
		return errors.New("client.read_timeout_seconds must be >= 0")
	}
	if cfg.Client.HTTPTimeoutSeconds < 1 {
		return errors.New("client.http_timeout_seconds must be >= 1")
	}
	if cfg.Client.CountdownFrom < 0 {
		return errors.New("client.countdown_from must be >= 0")
	}
	if cfg.UI.NotificationAppearMs < 0 || cfg.UI.NotificationHideMs < 0 || cfg.UI.NotificationRemoveMs < 0 {
		return errors.New("ui notification timings must be >= 0")
	}
	if cfg.UI.ReloadDelayMs < 0 {
		return errors.New("ui.reload_delay_ms must be >= 0")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	if cfg.Catalog.Path == "" {
		return errors.New("catalog.path must not be empty")
	}
	if cfg.Demo.RecordingSeconds < 1 {
		return errors.New("demo.recording_seconds must be >= 1")
	}
	if cfg.Demo.EarlyGuessSeconds < 0 || cfg.Demo.EarlyGuessSeconds > cfg.Demo.RecordingSeconds {
		return errors.New("demo.early_guess_seconds must be between 0 and recording_seconds")
	}
	if cfg.Demo.ProgressStep < 1 || cfg.Demo.ProgressStep > 100 {
		return errors.New("demo.progress_step must be between 1 and 100")
	}
	if cfg.Demo.ProcessingMs < 0 {
		return errors.New("demo.processing_ms must be >= 0")
	}
	if cfg.Demo.MatchRate < 0 || cfg.Demo.MatchRate > 1 {
		return errors.New("demo.match_rate must be between 0 and 1")
	}
	return nil
}

// Millis converts a millisecond config value to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
