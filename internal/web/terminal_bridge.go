package web

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dontbeterm/dontbeterm/internal/pty"
)

// TerminalStream is the live side of a tab's terminal.
type TerminalStream interface {
	Tail(n int) []byte
	Subscribe() (<-chan []byte, func())
	Done() <-chan struct{}
}

// TerminalLookup finds the terminal behind a session id.
type TerminalLookup func(id string) (TerminalStream, error)

// PTYTerminals looks terminals up in a pty manager.
func PTYTerminals(m *pty.Manager) TerminalLookup {
	return func(id string) (TerminalStream, error) {
		t, err := m.Get(id)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

const (
	wsWriteTimeout = 10 * time.Second
	// replayBytes of scrollback sent when a client connects.
	replayBytes = 64 * 1024
)

type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (w *wsConnWriter) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// terminalBridge copies a terminal's output to a websocket as binary frames.
type terminalBridge struct {
	sessionID string
	writer    *wsConnWriter
	stream    TerminalStream

	unsubscribe func()
	closeOnce   sync.Once
	stop        chan struct{}
	done        chan struct{}
}

func newTerminalBridge(sessionID string, stream TerminalStream, writer *wsConnWriter) (*terminalBridge, error) {
	if stream == nil || writer == nil {
		return nil, fmt.Errorf("terminal bridge for %s: stream and writer are required", sessionID)
	}

	// Subscribe before taking the replay so no output falls in between.
	ch, unsubscribe := stream.Subscribe()
	b := &terminalBridge{
		sessionID:   sessionID,
		writer:      writer,
		stream:      stream,
		unsubscribe: unsubscribe,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if replay := stream.Tail(replayBytes); len(replay) > 0 {
		if err := writer.WriteBinary(replay); err != nil {
			unsubscribe()
			return nil, err
		}
	}

	go b.streamOutput(ch)
	return b, nil
}

func (b *terminalBridge) streamOutput(ch <-chan []byte) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case chunk, ok := <-ch:
			if !ok {
				_ = b.writer.WriteJSON(wsServerMessage{
					Type:      "status",
					Event:     "terminal_exited",
					SessionID: b.sessionID,
					Time:      time.Now().UTC(),
				})
				return
			}
			if err := b.writer.WriteBinary(chunk); err != nil {
				return
			}
		}
	}
}

// Done is closed when output streaming has stopped.
func (b *terminalBridge) Done() <-chan struct{} {
	return b.done
}

func (b *terminalBridge) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
		b.unsubscribe()
	})
}
