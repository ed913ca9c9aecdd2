// Package config loads the process configuration: defaults, overlaid
// with an optional YAML file, overlaid with SHOTCOACH_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/framewise/shotcoach/internal/instruction"
	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/metadata"
	"github.com/framewise/shotcoach/internal/pipeline"
	"github.com/framewise/shotcoach/internal/session"
	"github.com/framewise/shotcoach/internal/stream"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the full process configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`

	LLM         llm.Config         `yaml:"llm"`
	Metadata    metadata.Config    `yaml:"metadata"`
	Pipeline    pipeline.Config    `yaml:"pipeline"`
	Instruction instruction.Config `yaml:"instruction"`
	Session     session.Config     `yaml:"session"`
	Stream      stream.Config      `yaml:"stream"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM:         llm.DefaultConfig(),
		Metadata:    metadata.DefaultConfig(),
		Pipeline:    pipeline.DefaultConfig(),
		Instruction: instruction.DefaultConfig(),
		Session:     session.DefaultConfig(),
		Stream:      stream.DefaultConfig(),
	}
}

// Load reads configuration from path, applied over defaults. An empty
// path skips the file. Environment overrides apply last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays the SHOTCOACH_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SHOTCOACH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SHOTCOACH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHOTCOACH_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SHOTCOACH_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SHOTCOACH_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SHOTCOACH_USE_LLM"); v != "" {
		cfg.Metadata.UseLLM = v == "true" || v == "1"
	}
}
