package ui

import (
	"context"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dontbeterm/dontbeterm/internal/pty"
)

const (
	clearScreen     = "\x1b[2J\x1b[H"
	syncOutputBegin = "\x1b[?2026h"
	syncOutputEnd   = "\x1b[?2026l"
)

// attachCmd implements tea.ExecCommand: bubbletea releases the terminal,
// Run hands it to the tab's shell until Ctrl+Q.
type attachCmd struct {
	term   *pty.Terminal
	stdin  io.Reader
	stdout io.Writer
}

func (a *attachCmd) Run() error {
	in, ok := a.stdin.(*os.File)
	if !ok || in == nil {
		in = os.Stdin
	}
	out := a.stdout
	if out == nil {
		out = os.Stdout
	}
	return pty.Attach(context.Background(), a.term, in, out)
}

func (a *attachCmd) SetStdin(r io.Reader)  { a.stdin = r }
func (a *attachCmd) SetStdout(w io.Writer) { a.stdout = w }
func (a *attachCmd) SetStderr(io.Writer)   {}

// attachDoneMsg is sent when the user detaches or the shell exits.
type attachDoneMsg struct {
	id  string
	err error
}

func attach(id string, term *pty.Terminal, output io.Writer) tea.Cmd {
	return tea.Exec(&attachCmd{term: term}, func(err error) tea.Msg {
		_, _ = io.WriteString(output, syncOutputBegin+clearScreen+syncOutputEnd)
		return attachDoneMsg{id: id, err: err}
	})
}
