// Package config loads chatdemo's runtime configuration: a YAML file
// for structured settings, with .env values available to override
// individual fields, mirroring the layered config/env setup the wider
// codebase uses for its own services.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is chatdemo's runtime configuration.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	NetworkTopic  string `yaml:"network_topic"`
	StatePath     string `yaml:"state_path"`
	ReassemblyLog bool   `yaml:"reassembly_log"`
}

// AppConfig is the process-wide loaded configuration.
var AppConfig Config

func defaults() Config {
	return Config{
		LogLevel:     "info",
		NetworkTopic: "chat",
		StatePath:    "chatdemo.db",
	}
}

// Load reads path (if present — a missing file falls back to defaults),
// loads a .env file from the current working directory if present, and
// sets AppConfig. Env vars win over the YAML file.
func Load(path string) error {
	cfg := defaults()

	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("config: parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	_ = godotenv.Load() // optional; absence of .env is not an error

	if v := os.Getenv("CHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHAT_NETWORK_TOPIC"); v != "" {
		cfg.NetworkTopic = v
	}
	if v := os.Getenv("CHAT_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}

	AppConfig = cfg
	return nil
}

// SetupLogging applies AppConfig.LogLevel to logger, falling back to
// Info on an unparseable level rather than failing startup over it.
func SetupLogging(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(AppConfig.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
