// Package config loads and saves ~/.dontbeterm/config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// FileName is the TOML config file inside the app directory.
const FileName = "config.toml"

// HomeEnv overrides the app directory (used by tests).
const HomeEnv = "DONTBETERM_HOME"

// Config is the user configuration.
type Config struct {
	// Theme is "dark" (default), "light" or "system".
	Theme string `toml:"theme"`

	Topic    TopicSettings    `toml:"topic"`
	Terminal TerminalSettings `toml:"terminal"`
	Logs     LogSettings      `toml:"logs"`
	Web      WebSettings      `toml:"web"`
}

// TopicSettings configure automatic topic labels.
type TopicSettings struct {
	// Command is the classifier CLI. Default: "claude"
	Command string `toml:"command"`

	// Prompt overrides the language's default instruction.
	Prompt string `toml:"prompt"`

	// Language of labels and the sentinel: "en" (default) or "zh".
	Language string `toml:"language"`

	// TimeoutSeconds is the hard deadline per classification. Default: 20
	TimeoutSeconds int `toml:"timeout_seconds"`

	// KillGraceSeconds bounds the wait after killing a timed-out classifier. Default: 2
	KillGraceSeconds int `toml:"kill_grace_seconds"`

	// MinSample is the rune count below which the classifier is skipped. Default: 50
	MinSample int `toml:"min_sample"`

	// MaxSample is how many trailing runes are sent to the classifier. Default: 2000
	MaxSample int `toml:"max_sample"`

	// MaxLabelRunes: accepted labels are strictly shorter. Default: 20
	MaxLabelRunes int `toml:"max_label_runes"`

	// SnapshotBytes of raw scrollback read per session on refresh. Default: 16384
	SnapshotBytes int `toml:"snapshot_bytes"`

	// TempDir for staged samples. Default: the OS temp dir
	TempDir string `toml:"temp_dir"`

	// MaxConcurrent classifications per refresh, 0 for no limit.
	MaxConcurrent int `toml:"max_concurrent"`

	// AutoRefreshSeconds refreshes topics on a timer; 0 disables.
	AutoRefreshSeconds int `toml:"auto_refresh_seconds"`

	// TrivialCommands are ignored by the "$ cmd" heuristic.
	TrivialCommands []string `toml:"trivial_commands"`
}

// TerminalSettings configure the shells behind tabs.
type TerminalSettings struct {
	// Shell to run. Default: $SHELL, then /bin/sh
	Shell string `toml:"shell"`

	// ScrollbackKB retained per tab. Default: 256
	ScrollbackKB int `toml:"scrollback_kb"`

	// DefaultTitle for tabs opened without a directory. Default: "Terminal"
	DefaultTitle string `toml:"default_title"`

	// OnExit is "close" (default) to close a tab whose shell exits, or
	// "mark" to keep it with an "(ended)" suffix.
	OnExit string `toml:"on_exit"`

	// Cols and Rows of new terminals. Default: 120x32
	Cols int `toml:"cols"`
	Rows int `toml:"rows"`

	// QuickCommands offered by the command menu, sent to the active tab.
	// Default: DefaultQuickCommands
	QuickCommands []string `toml:"quick_commands"`
}

// LogSettings configure the debug log.
type LogSettings struct {
	// DebugLevel: "debug", "info" (default), "warn", "error"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB before debug.log rotates. Default: 10
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated files kept. Default: 5
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays for rotated files. Default: 10
	DebugRetentionDays int `toml:"debug_retention_days"`

	// DebugCompress gzips rotated files.
	DebugCompress bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory log mirror behind "copy logs". Default: 2
	RingBufferMB int `toml:"ring_buffer_mb"`

	// AggregateIntervalSeconds for high-frequency event summaries. Default: 30
	AggregateIntervalSeconds int `toml:"aggregate_interval_seconds"`

	// PprofEnabled starts pprof on localhost:6060 in debug mode.
	PprofEnabled bool `toml:"pprof_enabled"`
}

// WebSettings configure "dontbeterm serve".
type WebSettings struct {
	// Listen address. Default: 127.0.0.1:8421
	Listen string `toml:"listen"`

	// Token, when set, is required as a bearer token or ?token= query.
	Token string `toml:"token"`

	// RefreshIntervalMs is the minimum gap between accepted
	// /api/topics/refresh calls. Default: 2000; negative disables the limit.
	RefreshIntervalMs int `toml:"refresh_interval_ms"`
}

// RefreshInterval returns the refresh rate limit. Negative means no limit.
func (w WebSettings) RefreshInterval() time.Duration {
	if w.RefreshIntervalMs < 0 {
		return -1
	}
	return time.Duration(w.RefreshIntervalMs) * time.Millisecond
}

const (
	OnExitClose = "close"
	OnExitMark  = "mark"

	DefaultListen = "127.0.0.1:8421"

	DefaultRefreshIntervalMs = 2000
)

// DefaultQuickCommands are the command menu entries when none are configured.
var DefaultQuickCommands = []string{
	"claude",
	"claude --continue",
	"claude --resume",
	"/clear",
	"/compact",
	"/cost",
	"/help",
}

var (
	cache   *Config
	cacheMu sync.RWMutex
)

// Dir returns the app directory: $DONTBETERM_HOME, else ~/.dontbeterm.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dontbeterm"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load returns the cached config, reading the file on first use. A missing
// file yields the zero config. On a parse error the zero config is cached
// and the error returned so the caller can show it.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		cache = &Config{}
		return cache, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cache = &Config{}
		return cache, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		cache = &Config{}
		return cache, fmt.Errorf("config.toml parse error: %w", err)
	}
	cache = &cfg
	return cache, nil
}

// Reload drops the cache and reads the file again.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the cached config; the next Load reads from disk.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// Save writes cfg atomically (temp file, fsync, rename) and clears the cache.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# DontBeTerm configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	_ = syncFile(tmp)
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func loaded() *Config {
	cfg, _ := Load()
	if cfg == nil {
		return &Config{}
	}
	return cfg
}

// GetTopicSettings returns the [topic] section as pipeline settings, with
// defaults applied.
func GetTopicSettings() topic.Settings {
	return loaded().Topic.Settings()
}

// Settings converts the section to pipeline settings with defaults applied.
func (t TopicSettings) Settings() topic.Settings {
	s := topic.Settings{
		Command:         strings.TrimSpace(t.Command),
		Prompt:          t.Prompt,
		Language:        strings.ToLower(strings.TrimSpace(t.Language)),
		Timeout:         time.Duration(t.TimeoutSeconds) * time.Second,
		KillGrace:       time.Duration(t.KillGraceSeconds) * time.Second,
		MinSample:       t.MinSample,
		MaxSample:       t.MaxSample,
		MaxLabelRunes:   t.MaxLabelRunes,
		TempDir:         t.TempDir,
		MaxConcurrent:   t.MaxConcurrent,
		TrivialCommands: t.TrivialCommands,
	}
	if s.Language != topic.LangEnglish && s.Language != topic.LangChinese {
		s.Language = topic.LangEnglish
	}
	return s.WithDefaults()
}

// SnapshotSize returns how much raw scrollback a refresh reads per tab.
func (t TopicSettings) SnapshotSize() int {
	if t.SnapshotBytes <= 0 {
		return 16 * 1024
	}
	return t.SnapshotBytes
}

// AutoRefresh returns the timer interval, 0 when disabled.
func (t TopicSettings) AutoRefresh() time.Duration {
	if t.AutoRefreshSeconds <= 0 {
		return 0
	}
	return time.Duration(t.AutoRefreshSeconds) * time.Second
}

// GetTopicSection returns the raw [topic] section.
func GetTopicSection() TopicSettings {
	return loaded().Topic
}

// GetDeckSettings returns the deck settings that follow the config file.
func GetDeckSettings() deck.Settings {
	t := loaded().Topic
	return deck.Settings{
		Topic:         t.Settings(),
		SnapshotBytes: t.SnapshotSize(),
		OnExit:        GetTerminalSettings().OnExit,
	}
}

// GetTerminalSettings returns the [terminal] section with defaults applied.
func GetTerminalSettings() TerminalSettings {
	s := loaded().Terminal
	if s.ScrollbackKB <= 0 {
		s.ScrollbackKB = 256
	}
	if strings.TrimSpace(s.DefaultTitle) == "" {
		s.DefaultTitle = "Terminal"
	}
	switch s.OnExit {
	case OnExitClose, OnExitMark:
	default:
		s.OnExit = OnExitClose
	}
	if s.Cols <= 0 || s.Cols > 1000 {
		s.Cols = 120
	}
	if s.Rows <= 0 || s.Rows > 1000 {
		s.Rows = 32
	}
	var quick []string
	for _, c := range s.QuickCommands {
		if c = strings.TrimSpace(c); c != "" {
			quick = append(quick, c)
		}
	}
	if len(quick) == 0 {
		quick = append([]string(nil), DefaultQuickCommands...)
	}
	s.QuickCommands = quick
	return s
}

// GetLogSettings returns the [logs] section with defaults applied.
func GetLogSettings() LogSettings {
	s := loaded().Logs
	if s.DebugLevel == "" {
		s.DebugLevel = "info"
	}
	if s.DebugFormat == "" {
		s.DebugFormat = "json"
	}
	if s.DebugMaxMB <= 0 {
		s.DebugMaxMB = 10
	}
	if s.DebugBackups <= 0 {
		s.DebugBackups = 5
	}
	if s.DebugRetentionDays <= 0 {
		s.DebugRetentionDays = 10
	}
	if s.RingBufferMB <= 0 {
		s.RingBufferMB = 2
	}
	if s.AggregateIntervalSeconds <= 0 {
		s.AggregateIntervalSeconds = 30
	}
	return s
}

// GetWebSettings returns the [web] section with defaults applied.
func GetWebSettings() WebSettings {
	s := loaded().Web
	if strings.TrimSpace(s.Listen) == "" {
		s.Listen = DefaultListen
	}
	if s.RefreshIntervalMs == 0 {
		s.RefreshIntervalMs = DefaultRefreshIntervalMs
	}
	return s
}

// GetTheme returns the configured theme, defaulting to "dark".
func GetTheme() string {
	switch t := loaded().Theme; t {
	case "dark", "light", "system":
		return t
	default:
		return "dark"
	}
}

// ResolveTheme maps the theme to "dark" or "light", asking the OS when the
// theme is "system". Detection failures resolve to "dark".
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

const exampleConfig = `# DontBeTerm configuration
# Every key is optional; the values below are the defaults.

# theme = "dark"          # dark | light | system

[topic]
# command = "claude"      # invoked as: <command> -p <prompt>, sample on stdin
# language = "en"         # en | zh
# timeout_seconds = 20
# kill_grace_seconds = 2
# min_sample = 50         # runes; shorter output is named heuristically
# max_sample = 2000       # trailing runes sent to the classifier
# max_label_runes = 20
# snapshot_bytes = 16384
# max_concurrent = 0      # 0 = no limit
# auto_refresh_seconds = 0
# trivial_commands = ["cd", "ls", "ll", "la", "pwd", "dir", "pushd", "popd", "clear"]

[terminal]
# shell = "/bin/zsh"
# scrollback_kb = 256
# default_title = "Terminal"
# on_exit = "close"       # close | mark
# cols = 120
# rows = 32
# quick_commands = ["claude", "claude --continue", "claude --resume", "/clear", "/compact", "/cost", "/help"]

[logs]
# debug_level = "info"
# debug_format = "json"
# debug_max_mb = 10
# debug_backups = 5
# debug_retention_days = 10
# debug_compress = false
# ring_buffer_mb = 2
# aggregate_interval_seconds = 30
# pprof_enabled = false

[web]
# listen = "127.0.0.1:8421"
# token = ""
# refresh_interval_ms = 2000   # -1 = no limit on /api/topics/refresh
`

// CreateExampleConfig writes a commented config file if none exists.
func CreateExampleConfig() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(exampleConfig), 0o600)
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
