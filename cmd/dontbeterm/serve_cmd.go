package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontbeterm/dontbeterm/internal/config"
	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/web"
)

const serveShutdownTimeout = 5 * time.Second

type serveFlags struct {
	listen string
	token  string
}

// parseServeFlags parses serve flags; defaults come from the [web] section.
func parseServeFlags(args []string) (serveFlags, error) {
	ws := config.GetWebSettings()
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", ws.Listen, "Listen address for the web server")
	token := fs.String("token", ws.Token, "Bearer token for API/WS access")

	fs.Usage = func() {
		fmt.Println("Usage: dontbeterm serve [options]")
		fmt.Println()
		fmt.Println("Run the HTTP/WebSocket control surface without the TUI.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dontbeterm serve")
		fmt.Println("  dontbeterm serve -listen 127.0.0.1:9000 -token s3cret")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return serveFlags{}, err
	}
	if fs.NArg() > 0 {
		return serveFlags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return serveFlags{listen: *listen, token: *token}, nil
}

func handleServe(args []string) int {
	flags, err := parseServeFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	warnConfig()
	stopLogging := setupLogging()
	defer stopLogging()
	log := logging.ForComponent(logging.CompWeb)

	mgr, d := newDeck()
	defer d.Close()

	cwd, _ := os.Getwd()
	if _, err := d.CreateSession(session.CreateOptions{Cwd: cwd}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start a shell: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.StartAutoRefresh(ctx, config.GetTopicSection().AutoRefresh())
	if w, err := config.NewWatcher(); err != nil {
		log.Warn("config_watcher_unavailable", slog.String("error", err.Error()))
	} else {
		defer w.Close()
		go followConfig(ctx, w, d)
	}

	server := web.NewServer(web.Config{
		ListenAddr:      flags.listen,
		Token:           flags.token,
		Version:         Version,
		Deck:            d,
		Terminals:       web.PTYTerminals(mgr),
		RefreshInterval: config.GetWebSettings().RefreshInterval(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	fmt.Printf("DontBeTerm v%s listening on http://%s\n", Version, flags.listen)
	if flags.token == "" {
		fmt.Println("Warning: no token set; anyone who can reach this address controls your shells")
	}

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("web_shutdown_failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// followConfig applies config edits to the running deck until ctx ends.
func followConfig(ctx context.Context, w *config.Watcher, d *deck.Deck) {
	log := logging.ForComponent(logging.CompConfig)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.Changes():
			if !ok {
				return
			}
			d.ApplySettings(config.GetDeckSettings())
			d.StartAutoRefresh(ctx, config.GetTopicSection().AutoRefresh())
			log.Info("config_applied", slog.String("warning", w.Warning()))
		}
	}
}
