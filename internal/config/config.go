// Package config loads treescope settings from a YAML file with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CacheConfig bounds the parse-tree cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"maxSizeMb"`
	TTLSeconds int  `yaml:"ttlSeconds"`
}

// SecurityConfig bounds file access within registered projects.
type SecurityConfig struct {
	MaxFileSizeMB int      `yaml:"maxFileSizeMb"`
	ExcludedDirs  []string `yaml:"excludedDirs"`
}

// LanguageConfig holds traversal defaults.
type LanguageConfig struct {
	DefaultMaxDepth int `yaml:"defaultMaxDepth"`
}

// Config holds all server settings.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	Language LanguageConfig `yaml:"language"`
	LogLevel string         `yaml:"logLevel"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:    true,
			MaxSizeMB:  100,
			TTLSeconds: 300,
		},
		Security: SecurityConfig{
			MaxFileSizeMB: 5,
			ExcludedDirs:  []string{".git", "node_modules", "__pycache__", "vendor"},
		},
		Language: LanguageConfig{
			DefaultMaxDepth: 5,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path, falling back to treescope.yml or
// treescope.yaml in the current directory when path is empty. A missing file
// yields the defaults, not an error. TREESCOPE_* environment variables
// override whatever was loaded.
func Load(path string) (*Config, error) {
	cfg := Default()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"treescope.yml", "treescope.yaml"}
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Clean(candidate))
		if err != nil {
			if path != "" {
				return nil, fmt.Errorf("read config %s: %w", candidate, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		break
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envBool("TREESCOPE_CACHE_ENABLED"); ok {
		cfg.Cache.Enabled = v
	}
	if v, ok := envInt("TREESCOPE_CACHE_MAX_SIZE_MB"); ok {
		cfg.Cache.MaxSizeMB = v
	}
	if v, ok := envInt("TREESCOPE_CACHE_TTL_SECONDS"); ok {
		cfg.Cache.TTLSeconds = v
	}
	if v, ok := envInt("TREESCOPE_MAX_FILE_SIZE_MB"); ok {
		cfg.Security.MaxFileSizeMB = v
	}
	if v, ok := envInt("TREESCOPE_DEFAULT_MAX_DEPTH"); ok {
		cfg.Language.DefaultMaxDepth = v
	}
	if v := os.Getenv("TREESCOPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	return strings.EqualFold(v, "true") || v == "1", true
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
