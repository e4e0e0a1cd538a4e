package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Adapter is the BlueZ adapter watched for Bluetooth headphones.
	Adapter string `yaml:"adapter"`
	// PollInterval is how often PulseAudio sinks are re-read.
	PollInterval time.Duration `yaml:"poll_interval"`
	// EventName is carried by every change notification.
	EventName string `yaml:"event_name"`
	// Bridges lists the client-facing bridges to serve: socket, dbus, http.
	Bridges  []string `yaml:"bridges"`
	Socket   string   `yaml:"socket"`
	HTTPAddr string   `yaml:"http_addr"`
	LogLevel string   `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Adapter:      "hci0",
		PollInterval: 2 * time.Second,
		EventName:    DefaultEventName,
		Bridges:      []string{bridgeSocket},
		Socket:       socketPath(),
		HTTPAddr:     "127.0.0.1:7311",
		LogLevel:     "info",
	}
}

func configPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "headphoned", "config.yaml")
}

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "headphoned.sock")
}

// loadConfig reads the config file at path over the defaults, then applies
// HEADPHONED_* environment overrides. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	// A .env in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HEADPHONED_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := os.Getenv("HEADPHONED_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HEADPHONED_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("HEADPHONED_EVENT_NAME"); v != "" {
		cfg.EventName = v
	}
	if v := os.Getenv("HEADPHONED_BRIDGES"); v != "" {
		cfg.Bridges = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Bridges = append(cfg.Bridges, b)
			}
		}
	}
	if v := os.Getenv("HEADPHONED_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("HEADPHONED_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("HEADPHONED_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func (c Config) validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	if c.EventName == "" {
		return fmt.Errorf("event_name must not be empty")
	}
	if len(c.Bridges) == 0 {
		return fmt.Errorf("at least one bridge is required")
	}
	for _, b := range c.Bridges {
		switch b {
		case bridgeSocket, bridgeDBus, bridgeHTTP:
		default:
			return fmt.Errorf("unknown bridge %q", b)
		}
	}
	return nil
}
