package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"nitz/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger atomic.Pointer[Logger]

// Logger wraps zap logger with context support
type Logger struct {
	zap *zap.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format     string `yaml:"format" env:"LOG_FORMAT"` // json, console
	OutputPath string `yaml:"outputPath"`              // file path or "stdout"
	ErrorPath  string `yaml:"errorPath"`               // error log file path or "stderr"
}

// Init initializes the global logger
func Init(cfg Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger.Store(logger)
	return nil
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "func",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	out, err := openSink(cfg.OutputPath, zapcore.AddSync(os.Stdout))
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoder, out, level)
	if cfg.ErrorPath != "" {
		errOut, err := openSink(cfg.ErrorPath, zapcore.AddSync(os.Stderr))
		if err != nil {
			return nil, err
		}
		// warnings and above are duplicated to the error sink
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, errOut, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.WarnLevel && l >= level
		})))
	}

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{zap: zapLogger}, nil
}

func openSink(path string, fallback zapcore.WriteSyncer) (zapcore.WriteSyncer, error) {
	switch path {
	case "":
		return fallback, nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

// customTimeEncoder formats time in RFC3339 format
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(time.RFC3339))
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext returns a zap logger carrying trace fields found in ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	return l.zap.With(extractFieldsFromContext(ctx)...)
}

func extractFieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if traceID := ctx.Value(contextkey.TraceID); traceID != nil {
		fields = append(fields, zap.String("trace_id", fmt.Sprint(traceID)))
	}
	if requestID := ctx.Value(contextkey.RequestID); requestID != nil {
		fields = append(fields, zap.String("request_id", fmt.Sprint(requestID)))
	}
	if userID := ctx.Value(contextkey.UserID); userID != nil {
		fields = append(fields, zap.Any("user_id", userID))
	}
	if submissionID := ctx.Value(contextkey.SubmissionID); submissionID != nil {
		fields = append(fields, zap.String("submission_id", fmt.Sprint(submissionID)))
	}
	return fields
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	if l := globalLogger.Load(); l != nil {
		l.WithContext(ctx).Debug(msg, fields...)
	}
}

// Info logs an info message
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	if l := globalLogger.Load(); l != nil {
		l.WithContext(ctx).Info(msg, fields...)
	}
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	if l := globalLogger.Load(); l != nil {
		l.WithContext(ctx).Warn(msg, fields...)
	}
}

// Error logs an error message
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	if l := globalLogger.Load(); l != nil {
		l.WithContext(ctx).Error(msg, fields...)
	}
}

// Sync flushes the global logger
func Sync() error {
	if l := globalLogger.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
