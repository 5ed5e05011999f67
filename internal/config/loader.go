package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bolke-ai/bolke/internal/browser"
)

// envAPIKey is the fallback environment variable for the live API key.
const envAPIKey = "GEMINI_API_KEY"

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.APIKey == "" {
		cfg.Live.APIKey = os.Getenv(envAPIKey)
	}
	if len(cfg.Search.Platforms) == 0 {
		cfg.Search.Platforms = browser.Platforms()
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = HistoryMemory
	}
	if cfg.History.Window <= 0 {
		cfg.History.Window = 10
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf(
			"server.log_level %q is invalid; valid values: debug, info, warn, error",
			cfg.Server.LogLevel))
	}

	if cfg.Live.APIKey == "" {
		errs = append(errs, fmt.Errorf(
			"live.api_key is required (or set the %s environment variable)", envAPIKey))
	}

	known := browser.Platforms()
	for _, p := range cfg.Search.Platforms {
		if !slices.Contains(known, p) {
			errs = append(errs, fmt.Errorf(
				"search.platforms entry %q is unknown; valid values: %v", p, known))
		}
	}

	if !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf(
			"history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.DSN == "" {
		errs = append(errs, errors.New("history.dsn is required for the postgres backend"))
	}

	return errors.Join(errs...)
}
