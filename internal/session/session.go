// Package session keeps the set of open terminal tabs: identity, titles, the
// manual-rename pin, ordering and the active tab.
package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an operation names an unknown session id.
var ErrNotFound = errors.New("session not found")

// PinState is a one-way latch: a session starts PinAuto and moves to
// PinPinned on the first user rename. Nothing moves it back.
type PinState int

const (
	PinAuto PinState = iota
	PinPinned
)

func (p PinState) String() string {
	if p == PinPinned {
		return "pinned"
	}
	return "auto"
}

// MarshalText renders the pin as "auto" or "pinned" in JSON.
func (p PinState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses "auto" or "pinned".
func (p *PinState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "auto", "":
		*p = PinAuto
	case "pinned":
		*p = PinPinned
	default:
		return fmt.Errorf("unknown pin state %q", b)
	}
	return nil
}

// Output is the recent output of a session's terminal.
type Output interface {
	// Tail returns a copy of at most the last n bytes of output.
	Tail(n int) []byte
}

// Backend runs the process behind a session. The registry never owns the
// process; it only asks the backend to start and stop it.
type Backend interface {
	Start(id string, opts CreateOptions) (Output, error)
	Stop(id string) error
}

// CreateOptions describe a new session. All fields are optional.
type CreateOptions struct {
	Cwd         string `json:"cwd,omitempty"`
	AutoCommand string `json:"autoCommand,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Session is a snapshot of one tab.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Pin         PinState  `json:"pin"`
	Cwd         string    `json:"cwd,omitempty"`
	AutoCommand string    `json:"autoCommand,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Ended       bool      `json:"ended"`
	Output      Output    `json:"-"`
}

// ManuallyRenamed reports whether a user rename pinned the title.
func (s Session) ManuallyRenamed() bool {
	return s.Pin == PinPinned
}

// EndedSuffix is appended to the display title of a session whose process
// has exited.
const EndedSuffix = " (ended)"

// DisplayTitle is the title as shown to the user.
func (s Session) DisplayTitle() string {
	if s.Ended {
		return s.Title + EndedSuffix
	}
	return s.Title
}

// Tail returns the last n bytes of output, or nil for sessions without one.
func (s Session) Tail(n int) []byte {
	if s.Output == nil {
		return nil
	}
	return s.Output.Tail(n)
}
