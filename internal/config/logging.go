package config

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging installs the process-wide slog default according to the log
// settings: text or JSON handler, the configured level, and either stderr
// or a rotating log file. Log output never goes to stdout, which belongs to
// search results.
func SetupLogging(s *LogSettings) {
	var out io.Writer = os.Stderr
	if s.File != "" {
		out = &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
		}
	}

	opts := &slog.HandlerOptions{Level: logLevel(s.Level)}
	var handler slog.Handler
	if s.Format == LogFormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: engine.workers", "value", s.Engine.Workers)
	logger.InfoContext(ctx, "Config: engine.text_load_limit", "value", s.Engine.TextLoadLimit)
	if s.Engine.NullBytesPerMiB > 0 {
		logger.InfoContext(ctx, "Config: engine.null_bytes_per_mib", "value", s.Engine.NullBytesPerMiB)
	}

	logger.InfoContext(ctx, "Config: server.transport", "value", s.Server.Transport)
	if s.Server.Transport == "sse" {
		logger.InfoContext(ctx, "Config: server.host", "value", s.Server.Host)
		logger.InfoContext(ctx, "Config: server.port", "value", s.Server.Port)
	}
	if s.Server.AllowReplace {
		logger.InfoContext(ctx, "Config: server.allow_replace", "value", true)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.Int("workers", s.Engine.Workers),
		slog.String("transport", s.Server.Transport),
		slog.String("host", s.Server.Host),
		slog.Int("port", s.Server.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
	)
}
