// Package config loads coach configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full coach configuration.
type Config struct {
	// DataDir is the root directory for all persisted state: the graph
	// file, tracking JSONL logs, session memory and entry markdown.
	DataDir string `yaml:"data_dir"`

	LLM LLMConfig `yaml:"llm"`

	// WalkCacheSize bounds the graph walk cache in bytes.
	WalkCacheSize int64 `yaml:"walk_cache_size"`
	// WalkCacheTTL bounds how long a cached walk result lives.
	WalkCacheTTL Duration `yaml:"walk_cache_ttl"`
}

// LLMConfig configures the chat completion client.
type LLMConfig struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"`
	Model      string   `yaml:"model"`
	MaxRetries int      `yaml:"max_retries"`
	Timeout    Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		DataDir: "coach_data",
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
			Timeout:    Duration(120 * time.Second),
		},
		WalkCacheSize: 1 << 20,
		WalkCacheTTL:  Duration(10 * time.Minute),
	}
}

// Load reads configuration from path (skipped when empty or missing)
// and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COACH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("COACH_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
}

// GraphPath returns the graph file location under the data directory.
func (c Config) GraphPath() string {
	return filepath.Join(c.DataDir, "graph.json")
}

// TrackingDir returns the tracking store directory.
func (c Config) TrackingDir() string {
	return filepath.Join(c.DataDir, "tracking")
}

// SessionDir returns the session memory directory.
func (c Config) SessionDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// EntriesDir returns the root directory for markdown entries.
func (c Config) EntriesDir() string {
	return filepath.Join(c.DataDir, "entries")
}

// WeeklyContextPath returns the weekly progression memory file.
func (c Config) WeeklyContextPath() string {
	return filepath.Join(c.DataDir, "weekly", "context_memory.json")
}
