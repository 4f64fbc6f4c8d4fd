package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom trace level below debug
const LevelTrace = slog.Level(-8)

// Redacted replaces the value of any field whose key names a credential.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against field keys. Tokens,
// authorization codes and signed state must never reach a log sink.
var sensitiveKeys = []string{
	"access_token", "authorization", "client_secret", "code", "code_verifier",
	"id_token", "jwt_secret", "nonce", "secret", "state", "token",
}

var (
	mu     sync.Mutex
	level  = new(slog.LevelVar)
	output io.Writer = os.Stderr
)

func init() {
	lvl, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
	installHandler()
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return slog.LevelError, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

func replaceAttr(timeKey, timeLayout string, utc bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch {
		case a.Key == slog.TimeKey:
			t := a.Value.Time()
			if utc {
				t = t.UTC()
			}
			return slog.String(timeKey, t.Format(timeLayout))
		case a.Key == slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		case isSensitive(a.Key):
			return slog.String(a.Key, Redacted)
		}
		return a
	}
}

func isSensitive(key string) bool {
	return slices.Contains(sensitiveKeys, strings.ToLower(key))
}

// installHandler rebuilds the default logger. LOG_FORMAT=JSON selects the
// JSON handler, anything else the text handler.
func installHandler() {
	mu.Lock()
	defer mu.Unlock()

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "JSON") {
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr("timestamp", time.RFC3339Nano, true),
		})
	} else {
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr(slog.TimeKey, "2006-01-02 15:04:05.000-07:00", false),
		})
	}

	slog.SetDefault(slog.New(handler).With("service", "generateui-api"))
}

// SetLogLevel updates the log level at runtime
func SetLogLevel(s string) error {
	lvl, err := parseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// SetOutput redirects every subsequent log line to w and returns a function
// restoring the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	mu.Lock()
	prev := output
	output = w
	mu.Unlock()
	installHandler()

	return func() {
		mu.Lock()
		output = prev
		mu.Unlock()
		installHandler()
	}
}

func Logf(format string, args ...any) {
	slog.Default().Info(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	slog.Default().Error(fmt.Sprintf(format, args...))
}

func LogWarn(format string, args ...any) {
	slog.Default().Warn(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...any) {
	slog.Default().Debug(fmt.Sprintf(format, args...))
}

func LogTrace(format string, args ...any) {
	slog.Default().Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

// buildArgs emits the component first and the remaining fields in key order
// so lines for the same event always read the same way.
func buildArgs(component string, fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	args := make([]any, 0, len(fields)*2+2)
	args = append(args, "component", component)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

func LogInfoWithFields(component, message string, fields map[string]any) {
	slog.Default().Info(message, buildArgs(component, fields)...)
}

func LogDebugWithFields(component, message string, fields map[string]any) {
	slog.Default().Debug(message, buildArgs(component, fields)...)
}

func LogErrorWithFields(component, message string, fields map[string]any) {
	slog.Default().Error(message, buildArgs(component, fields)...)
}

func LogWarnWithFields(component, message string, fields map[string]any) {
	slog.Default().Warn(message, buildArgs(component, fields)...)
}

func LogTraceWithFields(component, message string, fields map[string]any) {
	slog.Default().Log(context.Background(), LevelTrace, message, buildArgs(component, fields)...)
}
