// Package pty runs shells on pseudo-terminals for sessions, keeps their
// recent output in a scrollback ring and fans live output out to viewers.
package pty

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/ringbuf"
)

var (
	ErrNotFound = errors.New("terminal not found")
	ErrExited   = errors.New("terminal process exited")
)

const (
	readChunk      = 32 * 1024
	subscriberBuf  = 256
	hangupGrace    = 2 * time.Second
	drainAfterExit = 500 * time.Millisecond
)

// Terminal is one shell running on a pseudo-terminal.
type Terminal struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File
	buf  *ringbuf.RingBuffer
	log  *slog.Logger

	mu      sync.Mutex
	subs    map[int]chan []byte
	nextSub int
	ended   bool

	readDone  chan struct{}
	done      chan struct{}
	exitCode  int
	closeOnce sync.Once
}

func newTerminal(id string, cmd *exec.Cmd, ptmx *os.File, scrollback int, log *slog.Logger) *Terminal {
	t := &Terminal{
		id:       id,
		cmd:      cmd,
		ptmx:     ptmx,
		buf:      ringbuf.New(scrollback),
		log:      log,
		subs:     make(map[int]chan []byte),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	go t.waitLoop()
	return t
}

// ID returns the session id the terminal belongs to.
func (t *Terminal) ID() string {
	return t.id
}

// Pid returns the shell's process id.
func (t *Terminal) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Tail returns a copy of the last n bytes of output.
func (t *Terminal) Tail(n int) []byte {
	return t.buf.Tail(n)
}

// Scrollback returns all retained output.
func (t *Terminal) Scrollback() []byte {
	return t.buf.Bytes()
}

// Write sends input to the shell.
func (t *Terminal) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, ErrExited
	default:
	}
	return t.ptmx.Write(p)
}

// Resize changes the window size.
func (t *Terminal) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return nil
	}
	return creackpty.Setsize(t.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows})
}

// Subscribe returns a channel of output chunks written after the call and a
// function to unsubscribe. The channel is closed when the terminal ends.
// Slow subscribers lose chunks rather than stall the shell.
func (t *Terminal) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuf)

	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Done is closed once the shell has exited and its output is drained.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// ExitCode is valid after Done is closed; -1 means killed or unknown.
func (t *Terminal) ExitCode() int {
	<-t.done
	return t.exitCode
}

// Close hangs up the shell, kills it if it is still running after a grace
// period, and releases the pty.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		if t.cmd.Process != nil {
			select {
			case <-t.done:
			default:
				_ = t.cmd.Process.Signal(syscall.SIGHUP)
				select {
				case <-t.done:
				case <-time.After(hangupGrace):
					t.log.Warn("terminal_kill_after_hangup", slog.String("session_id", t.id))
					_ = t.cmd.Process.Kill()
					<-t.done
				}
			}
		}
		_ = t.ptmx.Close()
	})
	return nil
}

func (t *Terminal) readLoop() {
	defer close(t.readDone)
	buf := make([]byte, readChunk)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			_, _ = t.buf.Write(chunk)
			t.broadcast(chunk)
			logging.Aggregate(logging.CompPTY, "output_chunk", slog.String("session_id", t.id))
		}
		if err != nil {
			// EIO once the slave side closes is the normal end on Linux.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				t.log.Debug("terminal_read_error", slog.String("session_id", t.id), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (t *Terminal) waitLoop() {
	err := t.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	// Background jobs can keep the slave open; do not wait on them forever.
	select {
	case <-t.readDone:
	case <-time.After(drainAfterExit):
	}

	t.mu.Lock()
	t.exitCode = code
	t.ended = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()
	close(t.done)

	t.log.Info("terminal_exited", slog.String("session_id", t.id), slog.Int("exit_code", code))
}

func (t *Terminal) broadcast(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- chunk:
		default:
			logging.Aggregate(logging.CompPTY, "subscriber_drop", slog.String("session_id", t.id))
		}
	}
}
