package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Options struct {
	Level      LogLevel
	File       string // empty disables the rotating file core
	Color      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", level)
}

func newEncoder(color bool) zapcore.Encoder {
	levelEncoder := zapcore.CapitalLevelEncoder
	if color {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      levelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	})
}

func newConsoleCore(encoder zapcore.Encoder, level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
}

func newFileCore(encoder zapcore.Encoder, level zapcore.Level, opts Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   false,
		LocalTime:  true,
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(logFile), level)
}

// InitLogger installs the process wide logger. Console output is always on;
// the file core is only added when opts.File is set.
func InitLogger(opts Options) {
	level := zapcore.Level(opts.Level)
	cores := []zapcore.Core{newConsoleCore(newEncoder(opts.Color), level)}
	if opts.File != "" {
		// no colour escapes in files
		cores = append(cores, newFileCore(newEncoder(false), level, opts))
	}
	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// Use replaces the process wide logger, mostly for tests (zaptest/observer).
func Use(l *zap.Logger) {
	Logger = l
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// With returns a sugared child logger carrying fields. It never returns nil.
func With(args ...interface{}) *zap.SugaredLogger {
	if Logger == nil {
		return zap.NewNop().Sugar()
	}
	return Logger.WithOptions(zap.AddCallerSkip(-1)).Sugar().With(args...)
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Errorf(format, args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if Logger != nil {
		Logger.Error(message)
		Logger.Sync()
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	os.Exit(1)
}
