// Package config provides the configuration schema, loader, and file watcher
// for the Bolke voice shopping server.
package config

// LogLevel controls log verbosity for the Bolke server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryBackend selects where conversation turns are stored.
type HistoryBackend string

const (
	// HistoryMemory keeps turns in process memory. The default.
	HistoryMemory HistoryBackend = "memory"

	// HistoryPostgres persists turns in Postgres.
	HistoryPostgres HistoryBackend = "postgres"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	return b == HistoryMemory || b == HistoryPostgres
}

// Config is the root configuration structure for Bolke.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Live    LiveConfig    `yaml:"live"`
	Browser BrowserConfig `yaml:"browser"`
	Search  SearchConfig  `yaml:"search"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP/WebSocket server binds to.
	// Defaults to ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets slog verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// LiveConfig holds the live voice model connection settings.
type LiveConfig struct {
	// APIKey authenticates against the model API. When empty the
	// GEMINI_API_KEY environment variable is used.
	APIKey string `yaml:"api_key"`

	// Model overrides the default native-audio model id.
	Model string `yaml:"model"`

	// Voice selects the speech voice. Empty uses the provider default.
	Voice string `yaml:"voice"`
}

// BrowserConfig holds browser automation settings.
type BrowserConfig struct {
	// ChromePath is the Chrome/Chromium executable. Empty triggers
	// auto-detection of common install locations.
	ChromePath string `yaml:"chrome_path"`
}

// SearchConfig holds product search settings.
type SearchConfig struct {
	// Platforms lists the quick-commerce platforms to search.
	// Defaults to [zepto, blinkit].
	Platforms []string `yaml:"platforms"`

	// MaxResults caps products returned per search. Defaults to 5.
	MaxResults int `yaml:"max_results"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// Backend is "memory" or "postgres". Defaults to "memory".
	Backend HistoryBackend `yaml:"backend"`

	// DSN is the Postgres connection string. Required for the postgres
	// backend.
	DSN string `yaml:"dsn"`

	// Window is the number of turns retained per session. Defaults to 10.
	Window int `yaml:"window"`
}
