// Package log provides structured logging with run context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the engines (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Log output always goes to a diagnostic stream (stderr by default), never to
// the record stream.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/es2json/types"
)

// Logger provides structured logging with run context.
// All log entries include run_id, index and mode when a RunMeta is given.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	level zapcore.Level
}

// WithLevel sets the minimum enabled level. Defaults to info.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) { o.level = level }
}

// WithVerbose enables debug output when v is true.
func WithVerbose(v bool) Option {
	return func(o *options) {
		if v {
			o.level = zapcore.DebugLevel
		}
	}
}

// NewLogger creates a new logger with run context.
// Output defaults to os.Stderr. runMeta may be nil for pre-run diagnostics.
func NewLogger(runMeta *types.RunMeta, opts ...Option) *Logger {
	return NewLoggerWithWriter(runMeta, os.Stderr, opts...)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(runMeta *types.RunMeta, w io.Writer, opts ...Option) *Logger {
	o := options{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		o.level,
	)

	zapLogger := zap.New(core)
	if runMeta != nil {
		zapLogger = zapLogger.With(contextFields(runMeta)...)
	}
	return &Logger{zap: zapLogger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a new logger with a different output writer.
// The level is preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	level := zapcore.InfoLevel
	if l.zap.Core().Enabled(zapcore.DebugLevel) {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func contextFields(runMeta *types.RunMeta) []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", runMeta.RunID),
		zap.String("mode", string(runMeta.Mode)),
	}
	if runMeta.Index != "" {
		fields = append(fields, zap.String("index", runMeta.Index))
	}
	return fields
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
