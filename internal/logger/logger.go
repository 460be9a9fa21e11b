package logger

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger *logrus.Logger
)

// Init initializes the global logger
func Init(level string, json bool) {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(level))

	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	defaultLogger = l
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Get returns the default logger
func Get() *logrus.Logger {
	if defaultLogger == nil {
		Init("info", false)
	}
	return defaultLogger
}

// WithContext returns a logger with context values
func WithContext(ctx context.Context) *logrus.Entry {
	return Get().WithContext(ctx)
}

// fields turns slog-style key/value pairs into logrus fields.
// A trailing key without a value is logged under "!BADKEY".
func fields(args []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			f["!BADKEY"] = key
			break
		}
		if err, ok := args[i+1].(error); ok {
			f[key] = err.Error()
			continue
		}
		f[key] = args[i+1]
	}
	return f
}

// Info logs at info level
func Info(msg string, args ...any) {
	Get().WithFields(fields(args)).Info(msg)
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Get().WithFields(fields(args)).Debug(msg)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Get().WithFields(fields(args)).Warn(msg)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Get().WithFields(fields(args)).Error(msg)
}

// Fatal logs at error level and exits
func Fatal(msg string, args ...any) {
	Get().WithFields(fields(args)).Error(msg)
	os.Exit(1)
}

// With returns a logger with the given attributes
func With(args ...any) *logrus.Entry {
	return Get().WithFields(fields(args))
}
