// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete client configuration.
type Config struct {
	// Backend is the discussions/chats/sources REST service.
	Backend BackendConfig `toml:"backend"`

	// LLM is the streaming generation endpoint.
	LLM LLMConfig `toml:"llm"`

	// Storage configures local durable state.
	Storage StorageConfig `toml:"storage"`

	// Log configures the rotating log file.
	Log LogConfig `toml:"log"`
}

// BackendConfig holds REST backend settings.
type BackendConfig struct {
	// APIURL is the base URL of the backend, without trailing slash.
	APIURL string `toml:"api_url"`
	// PageLimit is the page size used when listing a discussion's exchanges.
	PageLimit int `toml:"page_limit"`
}

// LLMConfig holds streaming generation endpoint settings.
//
// Model, Temperature, SimilarityThreshold and TopK are passed verbatim as
// query parameters; they are kept as strings so that an unset value travels
// as an empty parameter, not as a zero the endpoint would take literally.
type LLMConfig struct {
	URL                 string `toml:"url"`
	AccessToken         string `toml:"access_token"`
	Model               string `toml:"model"`
	Temperature         string `toml:"temperature"`
	SimilarityThreshold string `toml:"similarity_threshold"`
	TopK                string `toml:"top_k"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// HistoryPath is the sqlite file mirroring the visible transcript.
	HistoryPath string `toml:"history_path"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	// File is the rotating log file path. Empty disables file logging.
	File string `toml:"file"`
	// Debug lowers the console level to debug.
	Debug bool `toml:"debug"`
}

// DefaultConfig returns the built-in defaults. Backend and LLM URLs have no
// default; they must come from the config file or the environment.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Backend: BackendConfig{PageLimit: 10},
		Storage: StorageConfig{
			HistoryPath: filepath.Join(home, ".alia", "history.db"),
		},
		Log: LogConfig{
			File: filepath.Join(home, ".alia", "alia.log"),
		},
	}
}

// DefaultPath returns the default config file location (~/.alia/config.toml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".alia", "config.toml")
	}
	return filepath.Join(home, ".alia", "config.toml")
}

// =============================================================================
// LOADING
// =============================================================================

// Load builds the effective configuration: defaults, then the TOML file at
// path (skipped when absent), then environment overrides. A .env file in the
// working directory is applied to the environment first, if present.
//
// The result is validated; a nil error means the configuration is usable.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	setString(&c.Backend.APIURL, "API_URL")
	setString(&c.LLM.URL, "ALIA_LLM_URL")
	setString(&c.LLM.AccessToken, "ALIA_API_ACCESS_TOKEN")
	setString(&c.LLM.Model, "MODEL")
	setString(&c.LLM.Temperature, "TEMPERATURE")
	setString(&c.LLM.SimilarityThreshold, "SIMILARITY_THRESHOLD")
	setString(&c.LLM.TopK, "TOP_K")
	setString(&c.Storage.HistoryPath, "ALIA_HISTORY_PATH")
	setString(&c.Log.File, "ALIA_LOG_FILE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration and returns a single error enumerating
// every missing or invalid key, so a misconfigured deployment is diagnosed
// in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Backend.APIURL == "" {
		problems = append(problems, "API_URL: required")
	} else if !validURL(c.Backend.APIURL) {
		problems = append(problems, "API_URL: not a valid http(s) URL")
	}

	if c.LLM.URL == "" {
		problems = append(problems, "ALIA_LLM_URL: required")
	} else if !validURL(c.LLM.URL) {
		problems = append(problems, "ALIA_LLM_URL: not a valid http(s) URL")
	}

	if c.Backend.PageLimit <= 0 {
		problems = append(problems, "backend.page_limit: must be positive")
	}

	if c.LLM.Temperature != "" {
		if _, err := strconv.ParseFloat(c.LLM.Temperature, 64); err != nil {
			problems = append(problems, "TEMPERATURE: not a number")
		}
	}
	if c.LLM.SimilarityThreshold != "" {
		if _, err := strconv.ParseFloat(c.LLM.SimilarityThreshold, 64); err != nil {
			problems = append(problems, "SIMILARITY_THRESHOLD: not a number")
		}
	}
	if c.LLM.TopK != "" {
		if _, err := strconv.Atoi(c.LLM.TopK); err != nil {
			problems = append(problems, "TOP_K: not an integer")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration, the following keys are missing or invalid:\n  - " +
		strings.Join(problems, "\n  - "))
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
