// Package logging builds the router's zap loggers from configuration.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger names used by router components
const (
	ConnectionManager = "CONN_MGR"
	Transport         = "TRANSPORT"
	Metrics           = "METRICS"
	Snapshot          = "SNAPSHOT"
)

// Config selects level, encoding and destination of the router log
type Config struct {
	Level      string `koanf:"level" yaml:"level"`
	Format     string `koanf:"format" yaml:"format"`
	OutputPath string `koanf:"output_path" yaml:"output_path"`
}

// DefaultConfig logs info and above to stdout in console format
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		OutputPath: "stdout",
	}
}

// ValidLevel reports whether level names a supported log level
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat reports whether format names a supported encoder
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "json", "console":
		return true
	}
	return false
}

// ParseLevel maps a level name to an atomic zap level. Unknown names map to info.
func ParseLevel(level string) zap.AtomicLevel {
	switch strings.ToLower(level) {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// New builds a logger from cfg. Empty fields take their DefaultConfig value.
func New(cfg Config) (*zap.Logger, error) {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = def.OutputPath
	}

	var zapConfig zap.Config
	if strings.ToLower(cfg.Level) == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = ParseLevel(cfg.Level)
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if strings.ToLower(cfg.Format) == "json" {
		zapConfig.Encoding = "json"
	} else {
		zapConfig.Encoding = "console"
	}

	zapConfig.OutputPaths = []string{cfg.OutputPath}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}

// MustNew is New falling back to a production logger when the configured
// output cannot be opened.
func MustNew(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("Falling back to default logger", zap.Error(err))
	}
	return logger
}
