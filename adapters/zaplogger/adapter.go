// Package zaplogger backs the client's logger contract with zap.
package zaplogger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-kick/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/joeshaw/envdecode"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string `env:"KICK_LOG_LEVEL,default=info"`
	Development bool   `env:"KICK_LOG_DEV,default=false"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("zaplogger: decode env: %w", err)
	}
	return cfg, nil
}

func levelFromString(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Build creates a JSON logger on stdout, or zap's development logger when
// cfg.Development is set.
func Build(cfg Config) (*zap.Logger, error) {
	level := levelFromString(cfg.Level)
	if cfg.Development {
		devCfg := zap.NewDevelopmentConfig()
		devCfg.Level = zap.NewAtomicLevelAt(level)
		return devCfg.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	zcore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level)
	return zap.New(zcore, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

type Logger struct {
	sugar *zap.SugaredLogger
}

func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

// Trace maps to zap's debug level.
func (l *Logger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Fatalw(msg, args...) }

func (l *Logger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return &Logger{sugar: l.sugar.With(args...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Provider hands out loggers named after the requesting component.
type Provider struct {
	base *zap.Logger
}

func NewProvider(base *zap.Logger) *Provider {
	if base == nil {
		base = zap.NewNop()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(p.base)
	}
	return New(p.base.Named(name))
}

var (
	_ core.Logger         = (*Logger)(nil)
	_ core.FieldsLogger   = (*Logger)(nil)
	_ core.LoggerProvider = (*Provider)(nil)
)
