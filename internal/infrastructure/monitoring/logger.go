// Package monitoring holds the observability adapters: the zap-backed
// logger, the prometheus metric set, and the OpenTelemetry tracer setup.
package monitoring

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/logger"
)

// ZapLogger implements logger.Logger on zap. The level is an atomic handle
// shared by all derived loggers, so a runtime SetLevel applies everywhere.
type ZapLogger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds the production logger from config.
func NewZapLogger(cfg *config.LogConfig) (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(zapLevel(constants.LogLevel(cfg.Level)))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{zap: z, level: level}, nil
}

// Debug implements logger.Logger.
func (l *ZapLogger) Debug(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Debug(message, l.zapFields(ctx, fields, nil)...)
}

// Info implements logger.Logger.
func (l *ZapLogger) Info(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Info(message, l.zapFields(ctx, fields, nil)...)
}

// Warn implements logger.Logger.
func (l *ZapLogger) Warn(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Warn(message, l.zapFields(ctx, fields, nil)...)
}

// Error implements logger.Logger.
func (l *ZapLogger) Error(ctx context.Context, message string, err error, fields ...logger.Field) {
	l.zap.Error(message, l.zapFields(ctx, fields, err)...)
}

// Fatal implements logger.Logger.
func (l *ZapLogger) Fatal(ctx context.Context, message string, err error, fields ...logger.Field) {
	l.zap.Fatal(message, l.zapFields(ctx, fields, err)...)
}

// WithFields implements logger.Logger.
func (l *ZapLogger) WithFields(fields ...logger.Field) logger.Logger {
	zfs := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zfs = append(zfs, zap.Any(f.Key, f.Value))
	}
	return &ZapLogger{zap: l.zap.With(zfs...), level: l.level}
}

// WithComponent implements logger.Logger.
func (l *ZapLogger) WithComponent(component string) logger.Logger {
	return &ZapLogger{zap: l.zap.With(zap.String("component", component)), level: l.level}
}

// SetLevel implements logger.Logger. It takes effect immediately for every
// logger derived from the same root.
func (l *ZapLogger) SetLevel(level constants.LogLevel) {
	l.level.SetLevel(zapLevel(level))
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.zap.Sync()
}

func (l *ZapLogger) zapFields(ctx context.Context, fields []logger.Field, err error) []zap.Field {
	zfs := make([]zap.Field, 0, len(fields)+2)
	if reqID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && reqID != "" {
		zfs = append(zfs, zap.String("request_id", reqID))
	}
	for _, f := range fields {
		zfs = append(zfs, zap.Any(f.Key, f.Value))
	}
	if err != nil {
		zfs = append(zfs, zap.Error(err))
	}
	return zfs
}

func zapLevel(level constants.LogLevel) zapcore.Level {
	switch level {
	case constants.LogLevelDebug:
		return zapcore.DebugLevel
	case constants.LogLevelWarn:
		return zapcore.WarnLevel
	case constants.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
