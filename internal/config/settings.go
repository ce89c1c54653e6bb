package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Log format constants
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EngineSettings tune the search engine itself
type EngineSettings struct {
	// Workers bounds the search worker pool. Zero sizes it from the
	// machine's CPU count.
	Workers int `mapstructure:"workers"`
	// TextLoadLimit is the size at which files stop being decoded fully
	// into memory, in humanized form ("16MiB"). Files at or above it are
	// memory-mapped.
	TextLoadLimit string `mapstructure:"text_load_limit"`
	// NullBytesPerMiB is the binary detection tolerance. Zero means a
	// single null byte classifies a file as binary.
	NullBytesPerMiB int `mapstructure:"null_bytes_per_mib"`
}

// LogSettings configuration for log output
type LogSettings struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // LogFormatText or LogFormatJSON
	// File routes log output into a rotating file instead of stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServerSettings configuration for the MCP server mode
type ServerSettings struct {
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	// AllowReplace exposes the replace tool over MCP. Off by default so a
	// remote client cannot rewrite files unless explicitly permitted.
	AllowReplace bool `mapstructure:"allow_replace"`
	// MaxResults caps how many result files one MCP search reports.
	MaxResults int `mapstructure:"max_results"`
}

// Settings application settings
type Settings struct {
	Engine        EngineSettings `mapstructure:"engine"`
	Log           LogSettings    `mapstructure:"log"`
	Server        ServerSettings `mapstructure:"server"`
	Auth          AuthSettings   `mapstructure:"auth"`
	BookmarksFile string         `mapstructure:"bookmarks_file"`
}

// TextLoadLimitBytes parses the humanized text load limit.
func (e *EngineSettings) TextLoadLimitBytes() (int64, error) {
	n, err := humanize.ParseBytes(e.TextLoadLimit)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// LoadSettings loads settings from environment variables and the optional
// config file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file > defaults.
// If flags is nil, only env vars, the config file and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.text_load_limit", "16MiB")
	v.SetDefault("engine.null_bytes_per_mib", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatText)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_replace", false)
	v.SetDefault("server.max_results", 100)
	v.SetDefault("auth.type", AuthTypeNone)
	v.SetDefault("bookmarks_file", filepath.Join(defaultConfigDir(), "bookmarks.yaml"))

	// Environment variables
	v.SetEnvPrefix("GREPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("engine.workers", "GREPLACE_ENGINE_WORKERS")
	_ = v.BindEnv("engine.text_load_limit", "GREPLACE_ENGINE_TEXT_LOAD_LIMIT")
	_ = v.BindEnv("engine.null_bytes_per_mib", "GREPLACE_ENGINE_NULL_BYTES_PER_MIB")
	_ = v.BindEnv("log.level", "GREPLACE_LOG_LEVEL")
	_ = v.BindEnv("log.format", "GREPLACE_LOG_FORMAT")
	_ = v.BindEnv("log.file", "GREPLACE_LOG_FILE")
	_ = v.BindEnv("server.transport", "GREPLACE_SERVER_TRANSPORT")
	_ = v.BindEnv("server.host", "GREPLACE_SERVER_HOST")
	_ = v.BindEnv("server.port", "GREPLACE_SERVER_PORT")
	_ = v.BindEnv("server.allow_replace", "GREPLACE_SERVER_ALLOW_REPLACE")
	_ = v.BindEnv("server.max_results", "GREPLACE_SERVER_MAX_RESULTS")
	_ = v.BindEnv("auth.type", "GREPLACE_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "GREPLACE_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "GREPLACE_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "GREPLACE_AUTH_API_KEYS")
	_ = v.BindEnv("bookmarks_file", "GREPLACE_BOOKMARKS_FILE")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		bindPFlag(v, flags, "engine.workers", "workers")
		bindPFlag(v, flags, "engine.text_load_limit", "text-load-limit")
		bindPFlag(v, flags, "engine.null_bytes_per_mib", "null-bytes-per-mib")
		bindPFlag(v, flags, "log.level", "log-level")
		bindPFlag(v, flags, "log.format", "log-format")
		bindPFlag(v, flags, "log.file", "log-file")
		bindPFlag(v, flags, "server.transport", "transport")
		bindPFlag(v, flags, "server.host", "host")
		bindPFlag(v, flags, "server.port", "port")
		bindPFlag(v, flags, "server.allow_replace", "allow-replace")
		bindPFlag(v, flags, "server.max_results", "max-results")
		bindPFlag(v, flags, "auth.type", "auth-type")
		bindPFlag(v, flags, "auth.basic.username", "auth-basic-username")
		bindPFlag(v, flags, "auth.basic.password", "auth-basic-password")
		bindPFlag(v, flags, "auth.api_keys", "auth-api-keys")
		bindPFlag(v, flags, "bookmarks_file", "bookmarks-file")
	}

	// Look for an optional config file next to the bookmarks
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultConfigDir())
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if no config file exists

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as
	// comma-separated string
	apiKeysEnv := os.Getenv("GREPLACE_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}
	settings.Auth.APIKeys = filterEmptyStrings(settings.Auth.APIKeys)

	// Expand home directory in file paths
	settings.BookmarksFile = expandHomeDir(settings.BookmarksFile)
	settings.Log.File = expandHomeDir(settings.Log.File)

	return &settings, nil
}

// bindPFlag binds a viper key to a flag when the flag exists. Lookup misses
// are ignored so shells can register subsets of the flag surface.
func bindPFlag(v *viper.Viper, flags *pflag.FlagSet, key, flag string) {
	if f := flags.Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

// defaultConfigDir returns the directory holding the config and bookmark
// files
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".greplace"
	}
	return filepath.Join(home, ".greplace")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete
// auth config, or out-of-range engine tuning.
func ValidateSettings(s *Settings) error {
	if err := validateEngineSettings(&s.Engine); err != nil {
		return err
	}
	if err := validateLogSettings(&s.Log); err != nil {
		return err
	}

	// Validate transport type
	switch s.Server.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Server.Transport)
	}
	if s.Server.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return nil
}

// validateEngineSettings validates the engine tuning values
func validateEngineSettings(e *EngineSettings) error {
	if e.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if e.NullBytesPerMiB < 0 {
		return errors.New("null-bytes-per-mib must not be negative")
	}
	n, err := e.TextLoadLimitBytes()
	if err != nil {
		return errors.New("text-load-limit is not a valid size: " + e.TextLoadLimit)
	}
	if n <= 0 {
		return errors.New("text-load-limit must be positive")
	}
	return nil
}

// validateLogSettings validates the log configuration
func validateLogSettings(l *LogSettings) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return errors.New("log level must be one of debug, info, warn, error, got: " + l.Level)
	}
	switch l.Format {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return errors.New("log format must be 'text' or 'json', got: " + l.Format)
	}
	if l.File != "" {
		if l.MaxSizeMB <= 0 {
			return errors.New("log max-size-mb must be positive")
		}
		if l.MaxBackups < 0 {
			return errors.New("log max-backups must not be negative")
		}
	}
	return nil
}
