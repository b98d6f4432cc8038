package logging

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Report builds a plain-text debug report from the in-memory log mirror,
// suitable for pasting into a bug report.
func Report(appName, version string) string {
	logs := strings.TrimRight(string(RingContents()), "\n")
	lines := 0
	if logs != "" {
		lines = strings.Count(logs, "\n") + 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s Debug Logs ===\n", appName)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Total logs: %d\n\n", lines)
	if logs != "" {
		b.WriteString(logs)
		b.WriteString("\n")
	}
	b.WriteString("\n=== System Info ===\n")
	fmt.Fprintf(&b, "OS: %s\n", runtime.GOOS)
	fmt.Fprintf(&b, "Arch: %s\n", runtime.GOARCH)
	fmt.Fprintf(&b, "Go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "Shell: %s\n", os.Getenv("SHELL"))
	fmt.Fprintf(&b, "Lang: %s\n", os.Getenv("LANG"))
	return b.String()
}
