package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// fakeTerm is an in-memory terminal.
type fakeTerm struct {
	mu     sync.Mutex
	output []byte
	subs   []chan []byte
	done   chan struct{}
	input  []string
	size   [2]uint16
}

func newFakeTerm() *fakeTerm {
	return &fakeTerm{done: make(chan struct{})}
}

func (t *fakeTerm) Tail(n int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < len(t.output) {
		return append([]byte(nil), t.output[len(t.output)-n:]...)
	}
	return append([]byte(nil), t.output...)
}

func (t *fakeTerm) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		close(ch)
		return ch, func() {}
	default:
	}
	t.subs = append(t.subs, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, c := range t.subs {
				if c == ch {
					t.subs = append(t.subs[:i], t.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (t *fakeTerm) Done() <-chan struct{} {
	return t.done
}

// emit appends output and broadcasts it.
func (t *fakeTerm) emit(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.output = append(t.output, s...)
	for _, ch := range t.subs {
		ch <- []byte(s)
	}
}

// end closes the terminal like a shell exit.
func (t *fakeTerm) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(t.done)
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
}

func (t *fakeTerm) inputs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.input...)
}

// fakeTerminals implements deck.Terminals over fakeTerms.
type fakeTerminals struct {
	mu    sync.Mutex
	terms map[string]*fakeTerm
}

func (f *fakeTerminals) Start(id string, _ session.CreateOptions) (session.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTerm()
	f.terms[id] = t
	return t, nil
}

func (f *fakeTerminals) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.terms, id)
	return nil
}

func (f *fakeTerminals) get(id string) *fakeTerm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terms[id]
}

func (f *fakeTerminals) Write(id string, p []byte) error {
	t := f.get(id)
	if t == nil {
		return fmt.Errorf("write %s: no terminal", id)
	}
	t.mu.Lock()
	t.input = append(t.input, string(p))
	t.mu.Unlock()
	return nil
}

func (f *fakeTerminals) Resize(id string, cols, rows uint16) error {
	t := f.get(id)
	if t == nil {
		return fmt.Errorf("resize %s: no terminal", id)
	}
	t.mu.Lock()
	t.size = [2]uint16{cols, rows}
	t.mu.Unlock()
	return nil
}

func (f *fakeTerminals) OnExit(func(string, int)) {}
func (f *fakeTerminals) CloseAll()                {}

func (f *fakeTerminals) lookup(id string) (TerminalStream, error) {
	t := f.get(id)
	if t == nil {
		return nil, fmt.Errorf("terminal %s: not found", id)
	}
	return t, nil
}

type testEnv struct {
	srv   *Server
	deck  *deck.Deck
	terms *fakeTerminals
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	terms := &fakeTerminals{terms: make(map[string]*fakeTerm)}
	d := deck.New(deck.Options{
		Terminals: terms,
		Classifier: topic.ClassifierFunc(func(context.Context, string) topic.Outcome {
			return topic.Outcome{State: topic.StateSucceeded, Label: "web label"}
		}),
		Logger: logging.Discard(),
	})
	t.Cleanup(d.Close)

	cfg.Deck = d
	cfg.Terminals = terms.lookup
	if cfg.Probe == nil {
		cfg.Probe = topic.NewCLIProbe("dontbeterm-no-such-cli", logging.Discard())
	}
	return &testEnv{srv: NewServer(cfg), deck: d, terms: terms}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

var _ http.Flusher = (*httptest.ResponseRecorder)(nil)
