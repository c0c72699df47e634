package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all pageforge server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	OpenAIKey  string `json:"openai_api_key"`
	Model      string `json:"model"`
	ImageModel string `json:"image_model"`

	StageTimeoutSec  int     `json:"stage_timeout_sec"`
	MaxAttempts      int     `json:"max_attempts"`
	NodeCeiling      int     `json:"node_ceiling"`
	ImageConcurrency int     `json:"image_concurrency"`
	ReferenceTTLMin  int     `json:"reference_ttl_min"`
	CacheSweepSpec   string  `json:"cache_sweep_spec"`
	VacuumSpec       string  `json:"vacuum_spec"`
	AcceptRule       string  `json:"accept_rule"`
	MinConfidence    float64 `json:"min_confidence"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(forgeDir(), "pageforge.db"),
		LogLevel:         "info",
		Model:            "gpt-4o",
		ImageModel:       "dall-e-3",
		StageTimeoutSec:  60,
		MaxAttempts:      3,
		NodeCeiling:      400,
		ImageConcurrency: 4,
		ReferenceTTLMin:  15,
	}
}

func forgeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pageforge"
	}
	return filepath.Join(home, ".pageforge")
}

func settingsPath() string {
	return filepath.Join(forgeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("PAGEFORGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PAGEFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIKey = v
	}
	if v := os.Getenv("PAGEFORGE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PAGEFORGE_IMAGE_MODEL"); v != "" {
		cfg.ImageModel = v
	}
	if v := os.Getenv("PAGEFORGE_STAGE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StageTimeoutSec = n
		}
	}
	if v := os.Getenv("PAGEFORGE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("PAGEFORGE_NODE_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NodeCeiling = n
		}
	}
	if v := os.Getenv("PAGEFORGE_IMAGE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ImageConcurrency = n
		}
	}
	if v := os.Getenv("PAGEFORGE_REFERENCE_TTL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReferenceTTLMin = n
		}
	}
	if v := os.Getenv("PAGEFORGE_CACHE_SWEEP_SPEC"); v != "" {
		cfg.CacheSweepSpec = v
	}
	if v := os.Getenv("PAGEFORGE_ACCEPT_RULE"); v != "" {
		cfg.AcceptRule = v
	}
	if v := os.Getenv("PAGEFORGE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinConfidence = f
		}
	}

	return cfg
}

func (c Config) stageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSec) * time.Second
}

func (c Config) referenceTTL() time.Duration {
	return time.Duration(c.ReferenceTTLMin) * time.Minute
}
