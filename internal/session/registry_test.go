package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontbeterm/dontbeterm/internal/logging"
)

type fakeOutput []byte

func (f fakeOutput) Tail(n int) []byte {
	if n >= len(f) {
		return append([]byte(nil), f...)
	}
	return append([]byte(nil), f[len(f)-n:]...)
}

type fakeBackend struct {
	mu       sync.Mutex
	started  []string
	opts     []CreateOptions
	stopped  []string
	startErr error
}

func (b *fakeBackend) Start(id string, opts CreateOptions) (Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	b.started = append(b.started, id)
	b.opts = append(b.opts, opts)
	return fakeOutput("output of " + id), nil
}

func (b *fakeBackend) Stop(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = append(b.stopped, id)
	return nil
}

func newTestRegistry(b Backend) *Registry {
	return NewRegistry(Options{Backend: b, Logger: logging.Discard()})
}

func mustCreate(t *testing.T, r *Registry, opts CreateOptions) Session {
	t.Helper()
	s, err := r.Create(opts)
	require.NoError(t, err)
	return s
}

func TestCreateDefaultsTitle(t *testing.T) {
	r := newTestRegistry(nil)

	tests := []struct {
		name string
		opts CreateOptions
		want string
	}{
		{"no cwd", CreateOptions{}, "Terminal"},
		{"cwd", CreateOptions{Cwd: "/home/me/projects/dontbeterm"}, "dontbeterm"},
		{"cwd trailing slash", CreateOptions{Cwd: "/srv/app/"}, "app"},
		{"root", CreateOptions{Cwd: "/"}, "/"},
		{"explicit", CreateOptions{Cwd: "/tmp", Title: "  scratch  "}, "scratch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustCreate(t, r, tt.opts)
			assert.Equal(t, tt.want, s.Title)
			assert.Equal(t, PinAuto, s.Pin)
			assert.False(t, s.ManuallyRenamed())
		})
	}
}

func TestCreateCustomDefaultTitle(t *testing.T) {
	r := NewRegistry(Options{DefaultTitle: "终端", Logger: logging.Discard()})
	assert.Equal(t, "终端", mustCreate(t, r, CreateOptions{}).Title)
}

func TestCreateStartsBackendAndActivates(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistry(b)

	s := mustCreate(t, r, CreateOptions{Cwd: "/work", AutoCommand: "claude"})

	require.Equal(t, []string{s.ID}, b.started)
	assert.Equal(t, "claude", b.opts[0].AutoCommand)
	assert.Equal(t, []byte("output of "+s.ID), s.Tail(1024))

	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, s.ID, active.ID)
}

func TestCreateBackendFailure(t *testing.T) {
	b := &fakeBackend{startErr: errors.New("no pty")}
	r := newTestRegistry(b)

	_, err := r.Create(CreateOptions{})
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestIDsAreUnique(t *testing.T) {
	r := newTestRegistry(nil)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := mustCreate(t, r, CreateOptions{})
		require.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		if i%2 == 0 {
			require.NoError(t, r.Close(s.ID))
		}
	}
}

func TestRenamePinsAndBlocksAutoTitle(t *testing.T) {
	r := newTestRegistry(nil)
	s := mustCreate(t, r, CreateOptions{})

	assert.True(t, r.ApplyAutoTitle(s.ID, "build fix"))
	got, _ := r.Get(s.ID)
	assert.Equal(t, "build fix", got.Title)

	require.NoError(t, r.Rename(s.ID, "my tab"))
	assert.True(t, r.Pinned(s.ID))

	assert.False(t, r.ApplyAutoTitle(s.ID, "late classifier result"))
	got, _ = r.Get(s.ID)
	assert.Equal(t, "my tab", got.Title)
	assert.True(t, got.ManuallyRenamed())
}

func TestRenameBlankKeepsTitleButPins(t *testing.T) {
	r := newTestRegistry(nil)
	s := mustCreate(t, r, CreateOptions{Cwd: "/src/api"})

	require.NoError(t, r.Rename(s.ID, "   "))

	got, _ := r.Get(s.ID)
	assert.Equal(t, "api", got.Title)
	assert.Equal(t, PinPinned, got.Pin)
}

func TestRenameUnknown(t *testing.T) {
	r := newTestRegistry(nil)
	assert.ErrorIs(t, r.Rename("missing", "x"), ErrNotFound)
}

func TestApplyAutoTitleNoops(t *testing.T) {
	r := newTestRegistry(nil)
	s := mustCreate(t, r, CreateOptions{})

	assert.False(t, r.ApplyAutoTitle("closed-mid-flight", "label"))
	assert.False(t, r.ApplyAutoTitle(s.ID, "  "))
	got, _ := r.Get(s.ID)
	assert.Equal(t, "Terminal", got.Title)
}

func TestCloseLastCreatesReplacementFirst(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistry(b)
	only := mustCreate(t, r, CreateOptions{Cwd: "/a"})

	require.NoError(t, r.Close(only.ID))

	list := r.List()
	require.Len(t, list, 1)
	assert.NotEqual(t, only.ID, list[0].ID)
	assert.Equal(t, "Terminal", list[0].Title)

	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, list[0].ID, active.ID)

	assert.Equal(t, []string{only.ID, list[0].ID}, b.started)
	assert.Equal(t, []string{only.ID}, b.stopped)
}

func TestCloseLastReplacementFailureKeepsSession(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistry(b)
	only := mustCreate(t, r, CreateOptions{})

	b.startErr = errors.New("pty exhausted")
	err := r.Close(only.ID)
	require.Error(t, err)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, only.ID, list[0].ID)
	assert.Empty(t, b.stopped)
}

func TestCloseMovesActiveToNeighbour(t *testing.T) {
	r := newTestRegistry(nil)
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	b := mustCreate(t, r, CreateOptions{Title: "b"})
	c := mustCreate(t, r, CreateOptions{Title: "c"})

	require.NoError(t, r.SetActive(b.ID))
	require.NoError(t, r.Close(b.ID))
	active, _ := r.Active()
	assert.Equal(t, c.ID, active.ID, "active moves to the tab that took its place")

	require.NoError(t, r.Close(c.ID))
	active, _ = r.Active()
	assert.Equal(t, a.ID, active.ID, "closing the last position falls back to the new last tab")

	d := mustCreate(t, r, CreateOptions{Title: "d"})
	require.NoError(t, r.SetActive(a.ID))
	require.NoError(t, r.Close(d.ID))
	active, _ = r.Active()
	assert.Equal(t, a.ID, active.ID, "closing an inactive tab keeps the active one")
}

func TestCloseUnknown(t *testing.T) {
	r := newTestRegistry(nil)
	assert.ErrorIs(t, r.Close("nope"), ErrNotFound)
}

func TestConcurrentCloseNeverEmpties(t *testing.T) {
	r := newTestRegistry(&fakeBackend{})
	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, mustCreate(t, r, CreateOptions{}).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Close(id))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
	_, ok := r.Active()
	assert.True(t, ok)
}

func TestConcurrentCloseOfLastSessionReplacesOnce(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistry(b)
	only := mustCreate(t, r, CreateOptions{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		notFound int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Close(only.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, notFound)
	require.Equal(t, 1, r.Len())
	assert.Len(t, b.started, 2, "one original and one replacement")
	assert.Equal(t, []string{only.ID}, b.stopped)
}

func TestNavigationWrapsAround(t *testing.T) {
	r := newTestRegistry(nil)
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	b := mustCreate(t, r, CreateOptions{Title: "b"})
	c := mustCreate(t, r, CreateOptions{Title: "c"})

	s, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, a.ID, s.ID, "next from the last tab wraps to the first")

	s, _ = r.Next()
	assert.Equal(t, b.ID, s.ID)

	s, _ = r.Prev()
	assert.Equal(t, a.ID, s.ID)
	s, _ = r.Prev()
	assert.Equal(t, c.ID, s.ID, "prev from the first tab wraps to the last")

	s, err := r.SelectIndex(1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, s.ID)
	_, err = r.SelectIndex(3)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.SetActive("missing"), ErrNotFound)
}

func TestNavigationEmpty(t *testing.T) {
	r := newTestRegistry(nil)
	_, ok := r.Next()
	assert.False(t, ok)
	_, ok = r.Active()
	assert.False(t, ok)
}

func TestListOrderAndUnpinned(t *testing.T) {
	r := newTestRegistry(nil)
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	b := mustCreate(t, r, CreateOptions{Title: "b"})
	c := mustCreate(t, r, CreateOptions{Title: "c"})
	require.NoError(t, r.Rename(b.ID, "pinned"))

	var ids []string
	for _, s := range r.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids)

	ids = nil
	for _, s := range r.Unpinned() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{a.ID, c.ID}, ids)
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := newTestRegistry(nil)
	s := mustCreate(t, r, CreateOptions{})
	list := r.List()
	list[0].Title = "mutated"
	list[0].Pin = PinPinned

	got, _ := r.Get(s.ID)
	assert.Equal(t, "Terminal", got.Title)
	assert.Equal(t, PinAuto, got.Pin)
}

func TestMarkEnded(t *testing.T) {
	r := newTestRegistry(nil)
	s := mustCreate(t, r, CreateOptions{Title: "shell"})

	assert.True(t, r.MarkEnded(s.ID))
	assert.False(t, r.MarkEnded("missing"))

	got, _ := r.Get(s.ID)
	assert.Equal(t, "shell", got.Title)
	assert.Equal(t, "shell (ended)", got.DisplayTitle())
}

func TestSessionJSON(t *testing.T) {
	r := newTestRegistry(&fakeBackend{})
	s := mustCreate(t, r, CreateOptions{Title: "x"})
	require.NoError(t, r.Rename(s.ID, "y"))
	got, _ := r.Get(s.ID)

	data, err := json.Marshal(got)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "pinned", m["pin"])
	assert.Equal(t, "y", m["title"])
	assert.NotContains(t, m, "Output")
}

func TestPinStateJSON(t *testing.T) {
	data, err := json.Marshal(Session{ID: "a", Pin: PinPinned})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pin":"pinned"`)

	var s Session
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, PinPinned, s.Pin)

	assert.Error(t, json.Unmarshal([]byte(`{"pin":"sticky"}`), &s))
}
