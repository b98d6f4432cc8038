package deck

import (
	"fmt"
	"sync"

	"github.com/dontbeterm/dontbeterm/internal/session"
)

type fakeOutput struct {
	mu   sync.Mutex
	data []byte
}

func (o *fakeOutput) Tail(n int) []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n < len(o.data) {
		return append([]byte(nil), o.data[len(o.data)-n:]...)
	}
	return append([]byte(nil), o.data...)
}

func (o *fakeOutput) set(s string) {
	o.mu.Lock()
	o.data = []byte(s)
	o.mu.Unlock()
}

// fakeTerminals records what the deck asks of its terminals.
type fakeTerminals struct {
	mu       sync.Mutex
	outputs  map[string]*fakeOutput
	stopped  []string
	writes   map[string][]string
	sizes    map[string][2]uint16
	hooks    []func(string, int)
	closed   bool
	startErr error
}

func newFakeTerminals() *fakeTerminals {
	return &fakeTerminals{
		outputs: make(map[string]*fakeOutput),
		writes:  make(map[string][]string),
		sizes:   make(map[string][2]uint16),
	}
}

func (f *fakeTerminals) Start(id string, _ session.CreateOptions) (session.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	out := &fakeOutput{}
	f.outputs[id] = out
	return out, nil
}

func (f *fakeTerminals) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[id]; !ok {
		return fmt.Errorf("stop %s: unknown", id)
	}
	delete(f.outputs, id)
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeTerminals) Write(id string, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[id] = append(f.writes[id], string(p))
	return nil
}

func (f *fakeTerminals) Resize(id string, cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes[id] = [2]uint16{cols, rows}
	return nil
}

func (f *fakeTerminals) OnExit(fn func(string, int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeTerminals) CloseAll() {
	f.mu.Lock()
	f.closed = true
	ids := make([]string, 0, len(f.outputs))
	for id := range f.outputs {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	// Terminals report their exit when closed.
	for _, id := range ids {
		f.exit(id, 129)
	}
}

// exit simulates the shell of id exiting.
func (f *fakeTerminals) exit(id string, code int) {
	f.mu.Lock()
	hooks := append([]func(string, int){}, f.hooks...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn(id, code)
	}
}

func (f *fakeTerminals) output(id string) *fakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[id]
}

func (f *fakeTerminals) written(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[id]...)
}
