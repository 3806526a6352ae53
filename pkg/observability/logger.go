package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is a logrus level restricted to the four levels stockroom emits
type LogLevel = logrus.Level

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// ParseLogLevel maps a level name onto one of the supported levels. Unknown
// names and the trace level fall back to info; fatal and panic clamp to error.
func ParseLogLevel(level string) LogLevel {
	parsed, err := logrus.ParseLevel(level)
	switch {
	case err != nil, parsed > DebugLevel:
		return InfoLevel
	case parsed < ErrorLevel:
		return ErrorLevel
	}
	return parsed
}

// NewLogger builds a JSON logger writing to output, stdout when nil
func NewLogger(level LogLevel, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}
	return &logrus.Logger{
		Out:       output,
		Level:     level,
		Hooks:     make(logrus.LevelHooks),
		Formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano},
	}
}

// NopLogger discards everything
func NopLogger() *logrus.Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

type contextKey int

const (
	requestIDKey contextKey = iota
	userIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequestLogger annotates base with the trace, request and user ids carried
// by ctx. Absent ids are left out.
func RequestLogger(ctx context.Context, base logrus.FieldLogger) logrus.FieldLogger {
	logger := UpdateLoggerWithTraceContext(ctx, base)
	fields := logrus.Fields{}
	if id := GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := GetUserID(ctx); id != "" {
		fields["user_id"] = id
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}
