package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger provides topic-based debug logging with minimal overhead when disabled
type Logger struct {
	topic   string
	enabled bool
}

var enabledTopics = parseTopics(os.Getenv("DEBUG_TOPICS"))

func init() {
	// Slog stays at INFO unless at least one debug topic is requested
	if len(enabledTopics) > 0 {
		configureSlog()
	}
}

// parseTopics reads the DEBUG_TOPICS value: DEBUG_TOPICS=bars,signal,kabus
// The special value "all" enables every topic.
func parseTopics(raw string) map[string]bool {
	topics := make(map[string]bool)
	if raw == "" {
		return topics
	}
	if raw == "all" {
		topics["*"] = true
		return topics
	}
	for _, topic := range strings.Split(raw, ",") {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			topics[topic] = true
		}
	}
	return topics
}

// configureSlog sets slog's default logger to DEBUG level
func configureSlog() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}

// New creates a new topic-specific logger
// Usage: var barsLog = logging.New("bars")
func New(topic string) *Logger {
	enabled := enabledTopics["*"] || enabledTopics[topic]
	return &Logger{
		topic:   topic,
		enabled: enabled,
	}
}

// Debug logs a debug message if this topic is enabled
// Fast path: returns immediately if disabled (single bool check)
func (l *Logger) Debug(msg string, args ...any) {
	if !l.enabled {
		return
	}
	allArgs := append([]any{"topic", l.topic}, args...)
	slog.Debug(msg, allArgs...)
}

// Info logs an info message if this topic is enabled
func (l *Logger) Info(msg string, args ...any) {
	if !l.enabled {
		return
	}
	allArgs := append([]any{"topic", l.topic}, args...)
	slog.Info(msg, allArgs...)
}

// Warn logs a warning message if this topic is enabled
func (l *Logger) Warn(msg string, args ...any) {
	if !l.enabled {
		return
	}
	allArgs := append([]any{"topic", l.topic}, args...)
	slog.Warn(msg, allArgs...)
}

// Error always logs, topic filtering never hides failures
func (l *Logger) Error(msg string, args ...any) {
	allArgs := append([]any{"topic", l.topic}, args...)
	slog.Error(msg, allArgs...)
}

// Enabled returns true if this logger is enabled
// Useful for expensive computations: if log.Enabled() { ... }
func (l *Logger) Enabled() bool {
	return l.enabled
}
