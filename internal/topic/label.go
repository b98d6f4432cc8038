// Package topic derives short topic labels for terminal sessions, either by
// asking an external conversational CLI or, when that is not possible, from
// simple patterns in the session's output.
package topic

import (
	"time"
)

// Provenance records which path produced a label.
type Provenance string

const (
	ProvenanceHeuristic  Provenance = "heuristic"
	ProvenanceClassifier Provenance = "classifier"
)

// Label is a topic label together with its provenance.
type Label struct {
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
}

// JobState is the state of one classification job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateSucceeded JobState = "succeeded"
	StateTimedOut  JobState = "timed_out"
	StateFailed    JobState = "failed"
)

// Final reports whether s is a terminal state.
func (s JobState) Final() bool {
	return s == StateSucceeded || s == StateTimedOut || s == StateFailed
}

// Language selects the sentinel, the command-label suffix and the default
// prompt.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

// Locale holds the language-dependent strings.
type Locale struct {
	Sentinel     string
	SuffixFormat string
	Prompt       string
}

var locales = map[string]Locale{
	LangEnglish: {
		Sentinel:     "new conversation",
		SuffixFormat: "%s session",
		Prompt:       "Summarize the topic of the following terminal session in 2 to 5 words. Output only the topic words, with no explanation and no punctuation.",
	},
	LangChinese: {
		Sentinel:     "新对话",
		SuffixFormat: "%s 会话",
		Prompt:       "请用3-5个中文字总结以下终端对话的主题。只输出主题词，不要任何解释或标点符号。",
	},
}

// LocaleFor returns the locale for lang, defaulting to English.
func LocaleFor(lang string) Locale {
	if l, ok := locales[lang]; ok {
		return l
	}
	return locales[LangEnglish]
}

// DefaultTrivialCommands are shell commands too generic to name a session.
var DefaultTrivialCommands = []string{"cd", "ls", "ll", "la", "pwd", "dir", "pushd", "popd", "clear"}

// Settings tunes the pipeline and the CLI classifier. Zero fields take the
// defaults from DefaultSettings.
type Settings struct {
	Command         string        // external CLI, invoked as "<Command> -p <Prompt>"
	Prompt          string        // overrides the locale prompt
	Language        string        // "en" or "zh"
	Timeout         time.Duration // hard deadline per invocation
	KillGrace       time.Duration // wait after the kill before giving up on pipes
	MinSample       int           // runes below which the classifier is skipped
	MaxSample       int           // runes from the end of the sample sent to the classifier
	MaxLabelRunes   int           // accepted labels are shorter than this
	TempDir         string        // staging dir, os.TempDir() when empty
	MaxConcurrent   int           // batch parallelism, 0 means unlimited
	TrivialCommands []string
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		Command:         "claude",
		Language:        LangEnglish,
		Timeout:         20 * time.Second,
		KillGrace:       2 * time.Second,
		MinSample:       50,
		MaxSample:       2000,
		MaxLabelRunes:   20,
		TrivialCommands: DefaultTrivialCommands,
	}
}

// WithDefaults fills zero fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Command == "" {
		s.Command = d.Command
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.Prompt == "" {
		s.Prompt = LocaleFor(s.Language).Prompt
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.KillGrace <= 0 {
		s.KillGrace = d.KillGrace
	}
	if s.MinSample <= 0 {
		s.MinSample = d.MinSample
	}
	if s.MaxSample <= 0 {
		s.MaxSample = d.MaxSample
	}
	if s.MaxLabelRunes <= 0 {
		s.MaxLabelRunes = d.MaxLabelRunes
	}
	if s.MaxConcurrent < 0 {
		s.MaxConcurrent = 0
	}
	if s.TrivialCommands == nil {
		s.TrivialCommands = d.TrivialCommands
	}
	return s
}
