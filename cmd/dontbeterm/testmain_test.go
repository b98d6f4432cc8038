package main

import (
	"os"
	"testing"
)

// TestMain points the config at an empty directory so command defaults are
// the built-in ones and the user's ~/.dontbeterm is never touched.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "dontbeterm-cmd-test")
	if err != nil {
		panic(err)
	}
	os.Setenv("DONTBETERM_HOME", dir)
	os.Unsetenv("DONTBETERM")

	code := m.Run()

	os.RemoveAll(dir)
	os.Exit(code)
}
