// Package logging builds the zap loggers used across hitplan.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // console, json
	// Output is stderr, stdout, file or both (stderr and file). Reports
	// own stdout, so stderr is the default.
	Output     string `json:"output,omitempty" yaml:"output,omitempty"`
	FilePath   string `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	MaxSize    int    `json:"maxSize,omitempty" yaml:"maxSize,omitempty"` // MB
	MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
	MaxAge     int    `json:"maxAge,omitempty" yaml:"maxAge,omitempty"` // days
	NoColor    bool   `json:"-" yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{Level: "warn", Format: "console", Output: "stderr", MaxSize: 10, MaxBackups: 3, MaxAge: 7}
}

func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var sinks []io.Writer
	switch cfg.Output {
	case "", "stderr":
		sinks = append(sinks, os.Stderr)
	case "stdout":
		sinks = append(sinks, os.Stdout)
	case "file", "both":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output %q requires a file path", cfg.Output)
		}
		if cfg.Output == "both" {
			sinks = append(sinks, os.Stderr)
		}
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		})
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	var cores []zapcore.Core
	for _, w := range sinks {
		var enc zapcore.Encoder
		switch cfg.Format {
		case "json":
			enc = zapcore.NewJSONEncoder(encCfg)
		case "", "console":
			c := encCfg
			if !cfg.NoColor && (w == os.Stderr || w == os.Stdout) {
				c.EncodeLevel = zapcore.CapitalColorLevelEncoder
			}
			enc = zapcore.NewConsoleEncoder(c)
		default:
			return nil, fmt.Errorf("unknown log format %q", cfg.Format)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), level))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init replaces the process-wide logger returned by L.
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// L returns the process-wide logger. It discards everything until Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Sync() {
	_ = L().Sync()
}
