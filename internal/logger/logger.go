// Package logger builds the zap logger used across dekvault.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains configuration for the logger
type Config struct {
	Debug  bool   // Enable debug level logging
	Format string // "json" or "human"
	File   string // Path to log file (optional)

	// Console receives warnings and errors, or everything in debug mode.
	// Defaults to stderr so command output on stdout stays clean.
	Console io.Writer
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Debug:  false,
		Format: "human",
	}
}

// New builds a logger from cfg. The returned function flushes the logger
// and closes the log file, if any.
func New(cfg Config) (*zap.Logger, func(), error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	consoleLevel, fileLevel := zap.WarnLevel, zap.InfoLevel
	if cfg.Debug {
		consoleLevel, fileLevel = zap.DebugLevel, zap.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder(cfg.Format, true), zapcore.AddSync(console), consoleLevel),
	}

	closeFile := func() {}
	if cfg.File != "" {
		// Ensure log directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closeFile = func() { f.Close() }
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format, false), zapcore.Lock(f), fileLevel))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	return log, func() {
		_ = log.Sync()
		closeFile()
	}, nil
}

func encoder(format string, color bool) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder // Enables colored log levels
	}
	return zapcore.NewConsoleEncoder(cfg)
}
