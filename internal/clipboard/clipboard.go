// Package clipboard copies tab scrollback and debug reports to the system
// clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	sysclip "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"

	"github.com/dontbeterm/dontbeterm/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("no content to copy")

// CopyResult describes a successful copy.
type CopyResult struct {
	Method    string // "system", "wl-copy", "clip.exe" or "osc52"
	ByteSize  int
	LineCount int
}

// Copy copies text with the platform's clipboard tool, falling back to an
// OSC 52 escape sequence on the controlling terminal when allowOSC52 is set.
func Copy(text string, allowOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	result := &CopyResult{ByteSize: len(text), LineCount: countLines(text)}

	method, err := copyNative(text)
	if err == nil {
		result.Method = method
		return result, nil
	}
	if !allowOSC52 {
		return nil, fmt.Errorf("no clipboard method available (install xclip, xsel, or wl-copy): %w", err)
	}

	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("OSC 52 clipboard failed: cannot open /dev/tty: %w", err)
	}
	defer tty.Close()
	if err := writeOSC52(tty, text, os.Getenv("TMUX") != ""); err != nil {
		return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
	}
	result.Method = "osc52"
	return result, nil
}

func copyNative(text string) (string, error) {
	switch p := platform.Detect(); p {
	case platform.PlatformWSL1, platform.PlatformWSL2:
		// The Linux tools reach an X server at best, not the Windows clipboard.
		return "clip.exe", runClipCmd("clip.exe", nil, text)

	case platform.PlatformLinux:
		// Wayland takes priority over X11
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", runClipCmd(path, nil, text)
			}
		}
	}
	if sysclip.Unsupported {
		return "", fmt.Errorf("unsupported platform: %s", platform.Detect())
	}
	return "system", sysclip.WriteAll(text)
}

func runClipCmd(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// writeOSC52 writes the clipboard sequence, wrapped for tmux passthrough
// when inTmux is set.
func writeOSC52(w io.Writer, text string, inTmux bool) error {
	seq := osc52.New(text)
	if inTmux {
		seq = seq.Tmux()
	}
	_, err := seq.WriteTo(w)
	return err
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
