// Package logging wraps zap with the context-correlation pattern used
// throughout this codebase: a process-wide logger plus helpers that pull
// a correlation id, room name, and user name out of a context.Context and
// attach them as structured fields automatically.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RoomNameKey      contextKey = "room_name"
	UserNameKey      contextKey = "user_name"
)

// Initialize sets up the global logger. Safe to call multiple times;
// only the first call takes effect.
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// L returns the global logger, falling back to a development logger if
// Initialize was never called (e.g. in tests).
func L() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	L().Info(msg, withContext(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	L().Warn(msg, withContext(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	L().Error(msg, withContext(ctx, fields)...)
}

func withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if room, ok := ctx.Value(RoomNameKey).(string); ok {
		fields = append(fields, zap.String("room", room))
	}
	if user, ok := ctx.Value(UserNameKey).(string); ok {
		fields = append(fields, zap.String("user", user))
	}
	fields = append(fields, zap.String("service", "chatangogo"))
	return fields
}

// WithRoom attaches a room name to ctx for subsequent log calls.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, RoomNameKey, room)
}

// WithCorrelationID attaches a correlation id to ctx for subsequent log calls.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}
