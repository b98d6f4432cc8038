package ui

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

const testCLI = "dontbeterm-no-such-cli"

type fakeOutput struct {
	mu   sync.Mutex
	data string
}

func (o *fakeOutput) Tail(n int) []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n < len(o.data) {
		return []byte(o.data[len(o.data)-n:])
	}
	return []byte(o.data)
}

// fakeTerminals hands every tab an output preloaded from outputs, keyed by
// the requested title.
type fakeTerminals struct {
	mu      sync.Mutex
	outputs map[string]string
	writes  map[string][]string
}

func (f *fakeTerminals) Start(_ string, opts session.CreateOptions) (session.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fakeOutput{data: f.outputs[opts.Title]}, nil
}

func (f *fakeTerminals) Write(id string, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writes == nil {
		f.writes = make(map[string][]string)
	}
	f.writes[id] = append(f.writes[id], string(p))
	return nil
}

func (f *fakeTerminals) written(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[id]...)
}

func (f *fakeTerminals) Stop(string) error                   { return nil }
func (f *fakeTerminals) Resize(string, uint16, uint16) error { return nil }
func (f *fakeTerminals) OnExit(func(string, int))            {}
func (f *fakeTerminals) CloseAll()                           {}

func newTestHome(t *testing.T, outputs map[string]string, classify topic.ClassifierFunc) (*Home, *deck.Deck) {
	t.Helper()
	h, d, _ := newTestHomeTerminals(t, outputs, classify)
	return h, d
}

func newTestHomeTerminals(t *testing.T, outputs map[string]string, classify topic.ClassifierFunc) (*Home, *deck.Deck, *fakeTerminals) {
	t.Helper()
	if classify == nil {
		classify = func(context.Context, string) topic.Outcome {
			return topic.Outcome{State: topic.StateSucceeded, Label: "ui label"}
		}
	}
	terms := &fakeTerminals{outputs: outputs}
	d := deck.New(deck.Options{
		Terminals:  terms,
		Classifier: classify,
		Logger:     logging.Discard(),
	})
	h := NewHome(Options{
		Deck:   d,
		Probe:  topic.NewCLIProbe(testCLI, logging.Discard()),
		Output: io.Discard,
		Logger: logging.Discard(),
	})
	t.Cleanup(func() {
		h.Close()
		d.Close()
	})
	h.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return h, d, terms
}

// press feeds one key to the model.
func press(h *Home, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		msg = tea.KeyMsg{Type: tea.KeyShiftTab}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := h.Update(msg)
	return cmd
}

func mustCreate(t *testing.T, d *deck.Deck, title string) session.Session {
	t.Helper()
	s, err := d.CreateSession(session.CreateOptions{Title: title})
	if err != nil {
		t.Fatalf("CreateSession(%q): %v", title, err)
	}
	return s
}

func activeTitle(t *testing.T, d *deck.Deck) string {
	t.Helper()
	s, ok := d.Active()
	if !ok {
		t.Fatal("no active tab")
	}
	return s.Title
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func longOutput(topicWord string) string {
	return "$ " + topicWord + "\n" + strings.Repeat(topicWord+" output line\n", 10)
}
