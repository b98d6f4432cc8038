package ui

import (
	"context"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	dark "github.com/thiagokokada/dark-mode-go"
)

// ThemeWatcher follows OS dark mode changes for theme = "system".
type ThemeWatcher struct {
	changeCh  chan bool // true=dark, false=light
	closeCh   chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// themeChangedMsg carries the resolved theme name after an OS switch.
type themeChangedMsg struct {
	theme string
}

// NewThemeWatcher starts watching. Returns nil when the platform cannot
// report dark mode changes; callers keep the theme they started with.
func NewThemeWatcher(parentCtx context.Context, log *slog.Logger) *ThemeWatcher {
	ctx, cancel := context.WithCancel(parentCtx)

	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		cancel()
		log.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}

	tw := &ThemeWatcher{
		changeCh: make(chan bool, 1),
		closeCh:  make(chan struct{}),
		log:      log,
	}
	go tw.watchLoop(ctx, cancel, events, errs)
	return tw
}

func (tw *ThemeWatcher) watchLoop(ctx context.Context, cancel context.CancelFunc, events <-chan bool, errs <-chan error) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.closeCh:
			return
		case isDark, ok := <-events:
			if !ok {
				return
			}
			// Keep only the latest state.
			select {
			case <-tw.changeCh:
			default:
			}
			tw.changeCh <- isDark
		case err, ok := <-errs:
			if ok && err != nil {
				tw.log.Warn("theme_watcher_error", slog.String("error", err.Error()))
			}
		}
	}
}

// Changes returns the channel that receives dark mode changes.
func (tw *ThemeWatcher) Changes() <-chan bool {
	return tw.changeCh
}

// Close stops the watcher goroutine. Safe to call multiple times.
func (tw *ThemeWatcher) Close() {
	tw.closeOnce.Do(func() {
		close(tw.closeCh)
	})
}

// listenForThemeChange waits for the next OS theme switch.
func listenForThemeChange(tw *ThemeWatcher) tea.Cmd {
	return func() tea.Msg {
		select {
		case isDark := <-tw.changeCh:
			if isDark {
				return themeChangedMsg{theme: string(ThemeDark)}
			}
			return themeChangedMsg{theme: string(ThemeLight)}
		case <-tw.closeCh:
			return nil
		}
	}
}
