//go:build !windows

package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// detachKey is Ctrl+Q.
const detachKey = 17

// replayBytes of scrollback are redrawn when attaching.
const replayBytes = 16 * 1024

// Attach connects the caller's terminal to t until Ctrl+Q is pressed, the
// shell exits, or ctx is done. stdin is put in raw mode when it is a tty.
func Attach(ctx context.Context, t *Terminal, stdin *os.File, stdout io.Writer) error {
	select {
	case <-t.Done():
		return ErrExited
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()
	}

	in, err := cancelreader.NewReader(stdin)
	if err != nil {
		return fmt.Errorf("stdin reader: %w", err)
	}
	defer in.Close()

	out, unsubscribe := t.Subscribe()
	defer unsubscribe()

	if tail := t.Tail(replayBytes); len(tail) > 0 {
		_, _ = stdout.Write([]byte("\x1b[H\x1b[2J"))
		_, _ = stdout.Write(tail)
	}

	var wg sync.WaitGroup

	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	defer signal.Stop(sigwinch)
	sigwinch <- syscall.SIGWINCH

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigwinch:
				if ws, err := creackpty.GetsizeFull(stdin); err == nil {
					_ = t.Resize(ws.Cols, ws.Rows)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-out:
				if !ok {
					cancel()
					return
				}
				if _, err := stdout.Write(chunk); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		start := time.Now()
		buf := make([]byte, 256)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			// Terminal capability replies right after raw mode starts.
			if time.Since(start) < 50*time.Millisecond {
				continue
			}
			if n == 1 && buf[0] == detachKey {
				return
			}
			if _, err := t.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	in.Cancel()
	wg.Wait()

	select {
	case <-t.Done():
		return ErrExited
	default:
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
