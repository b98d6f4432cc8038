package topic

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dontbeterm/dontbeterm/internal/logging"
)

// writeScript writes an executable shell script standing in for the CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake classifier scripts need /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// testSettings points the classifier at command and stages into stageDir.
func testSettings(command, stageDir string) Settings {
	return Settings{
		Command:   command,
		Timeout:   5 * time.Second,
		KillGrace: time.Second,
		TempDir:   stageDir,
	}.WithDefaults()
}

func newTestClassifier(command, stageDir string) *CLIClassifier {
	return NewCLIClassifier(testSettings(command, stageDir), logging.Discard())
}

// longSample pads text past the classifier threshold.
func longSample(text string) string {
	return text + "\n" + strings.Repeat("output line with some words\n", 4)
}

// requireEmptyDir fails when dir still holds staged files.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Empty(t, names, "staged files left behind")
}
