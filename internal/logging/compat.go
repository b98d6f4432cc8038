package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// BridgeWriter is an io.Writer for stdlib log users (http.Server.ErrorLog,
// the pprof server, third-party packages). Each write becomes one warn
// record; a leading "[CATEGORY] " picks the component.
type BridgeWriter struct {
	component string
	level     slog.Level
}

// NewBridgeWriter creates a writer logging at warn under defaultComponent
// unless the line names its own category.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent, level: slog.LevelWarn}
}

// Write implements io.Writer. It never fails.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return len(p), nil
	}

	component := bw.component
	msg = stripLogTimestamp(msg)
	if cat, rest, ok := splitCategory(msg); ok {
		component, msg = cat, rest
	}

	// Logger() is resolved per write so writers made before Init still log.
	Logger().Log(context.Background(), bw.level, msg, slog.String("component", canonicalComponent(component)))
	return len(p), nil
}

// splitCategory splits "[HTTP] msg" into ("http", "msg").
func splitCategory(msg string) (cat, rest string, ok bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg, false
	}
	end := strings.Index(msg, "] ")
	if end <= 1 {
		return "", msg, false
	}
	return strings.ToLower(msg[1:end]), msg[end+2:], true
}

// stripLogTimestamp removes the prefix written by the stdlib log flags:
// "2006/01/02 15:04:05 ", "15:04:05.000000 " or "15:04:05 ".
func stripLogTimestamp(s string) string {
	isClock := func(c string) bool { return len(c) == 8 && c[2] == ':' && c[5] == ':' }

	if len(s) > 20 && s[4] == '/' && s[7] == '/' && s[10] == ' ' && isClock(s[11:19]) && s[19] == ' ' {
		return s[20:]
	}
	if len(s) > 16 && isClock(s[:8]) && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && isClock(s[:8]) && s[8] == ' ' {
		return s[9:]
	}
	return s
}

var componentAliases = map[string]string{
	"session":    CompSession,
	"registry":   CompSession,
	"topic":      CompTopic,
	"pipeline":   CompTopic,
	"classifier": CompClassifier,
	"claude":     CompClassifier,
	"pty":        CompPTY,
	"terminal":   CompPTY,
	"http":       CompWeb,
	"web":        CompWeb,
	"ws":         CompWeb,
	"perf":       CompPerf,
}

// canonicalComponent maps log prefixes to component names; unknown
// prefixes are kept as is.
func canonicalComponent(cat string) string {
	if c, ok := componentAliases[cat]; ok {
		return c
	}
	return cat
}
