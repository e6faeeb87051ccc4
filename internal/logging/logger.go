// Package logging provides the process-wide structured logger. It tees a
// human-readable console encoder with an optional rotated JSON file
// encoder, following the same core-composition approach as other
// zap-based services, and exposes a small package-level API so call
// sites don't have to carry a logger value around.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *zap.Logger = zap.NewNop()

// Options configures Init. LogFile may be empty, in which case only the
// console core is built.
type Options struct {
	Level   string // debug, info, warn, error
	LogFile string
	MaxSizeMB int
	MaxBackups int
	MaxAgeDays int
}

// Init builds the global logger. It is safe to call more than once; the
// latest call wins. Call Close before process exit to flush buffers.
func Init(opts Options) error {
	level := parseLevel(opts.Level)

	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderCfg),
		zapcore.Lock(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if opts.LogFile != "" {
		fileEncoderCfg := zap.NewProductionEncoderConfig()
		fileEncoderCfg.TimeKey = "ts"
		fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		writer := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}

		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderCfg),
			zapcore.AddSync(writer),
			level,
		)
		cores = append(cores, fileCore)
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

// Debug logs a debug-level message.
func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

// Warn logs a warning.
func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

// Error logs err's message at error level with optional structured
// fields, matching the teacher's logger.Error(err) call shape. It does
// nothing when err is nil.
func Error(err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	log.Error(err.Error(), fields...)
}

// Close flushes any buffered log entries.
func Close() error {
	return log.Sync()
}
