// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"traze.dev/internal/config"
)

// New returns a console-encoded logger writing to cfg.File (rotated by
// lumberjack) or to stderr when no file is configured. The returned
// function flushes buffered entries and closes the file.
func New(cfg config.LogConfig) (*zap.SugaredLogger, func(), error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var (
		out    zapcore.WriteSyncer
		closer io.Closer
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out, closer = zapcore.AddSync(lj), lj
	} else {
		out = zapcore.Lock(os.Stderr)
	}
	log := build(out, lvl)
	return log, func() {
		_ = log.Sync()
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}

func build(out zapcore.WriteSyncer, lvl zapcore.Level) *zap.SugaredLogger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, lvl)
	return zap.New(core, zap.AddCaller()).Sugar()
}
