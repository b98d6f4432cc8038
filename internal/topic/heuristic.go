package topic

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	// A path at the start of a line, e.g. a prompt like "~/src/app $".
	cwdPattern = regexp.MustCompile(`(?m)^([~/][\w\-./]+)(?:\s|$)`)
	// "$ word" at the start of a line.
	commandPattern = regexp.MustCompile(`(?m)^\$\s+(\w+)`)
)

// Namer derives a label from sanitized text using fixed rules. It never
// fails and never does I/O.
type Namer struct {
	locale  Locale
	trivial map[string]struct{}
}

// NewNamer creates a namer for the given language. A nil trivial list uses
// DefaultTrivialCommands.
func NewNamer(lang string, trivial []string) *Namer {
	if trivial == nil {
		trivial = DefaultTrivialCommands
	}
	set := make(map[string]struct{}, len(trivial))
	for _, c := range trivial {
		set[strings.ToLower(c)] = struct{}{}
	}
	return &Namer{locale: LocaleFor(lang), trivial: set}
}

// Sentinel is the label used when nothing better is found.
func (n *Namer) Sentinel() string {
	return n.locale.Sentinel
}

// Name returns, in order of preference: the last segment of the first
// line-leading path, "<cmd> session" for the first non-trivial
// "$ cmd" line, or the sentinel.
func (n *Namer) Name(text string) Label {
	if dir := n.directory(text); dir != "" {
		return Label{Text: dir, Provenance: ProvenanceHeuristic}
	}
	if cmd := n.command(text); cmd != "" {
		return Label{Text: fmt.Sprintf(n.locale.SuffixFormat, cmd), Provenance: ProvenanceHeuristic}
	}
	return Label{Text: n.locale.Sentinel, Provenance: ProvenanceHeuristic}
}

// directory looks at the first line-leading path only. A bare home or root
// there means no directory label, even if a later line has a usable path.
func (n *Namer) directory(text string) string {
	m := cwdPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	switch seg := path.Base(m[1]); seg {
	case "", "~", "/", ".", "..":
		return ""
	default:
		return seg
	}
}

func (n *Namer) command(text string) string {
	for _, m := range commandPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := n.trivial[strings.ToLower(m[1])]; ok {
			continue
		}
		return m[1]
	}
	return ""
}
