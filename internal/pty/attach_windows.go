//go:build windows

package pty

import (
	"context"
	"errors"
	"io"
	"os"
)

// Attach is not available on Windows; use the web terminal instead.
func Attach(ctx context.Context, t *Terminal, stdin *os.File, stdout io.Writer) error {
	return errors.New("attach is not supported on windows")
}
