package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/tutu529/qilin-check-bag/internal/api"
	"github.com/tutu529/qilin-check-bag/internal/config"
	"github.com/tutu529/qilin-check-bag/internal/logging"
	"github.com/tutu529/qilin-check-bag/internal/notify"
	"github.com/tutu529/qilin-check-bag/internal/review"
	"github.com/tutu529/qilin-check-bag/internal/tui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	noTUI := flag.Bool("no-tui", false, "disable TUI mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Auto-detect TUI capability
	enableTUI := !*noTUI && os.Getenv("QILIN_CHECK_BAG_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, logCloser, err := logging.Setup(cfg.LogFile, cfg.Log.Level, enableTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	client := api.NewClient(cfg.Server.BaseURL, cfg.Auth.Token, cfg.Auth.UserID, logger)
	sess := review.NewSession(cfg.Review, client, client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.WSURL != "" {
		listener := notify.NewListener(cfg.Server.WSURL, cfg.Auth.Token, cfg.Auth.UserID, logger)
		listener.OnStatus(func(s notify.Status) { sess.SetConnStatus(s.String()) })
		removeHandler := listener.Subscribe(sess.NotifyItemAvailable)
		defer removeHandler()

		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				// The session keeps polling via the idle backstop.
				logger.Error("notification listener stopped", "err", err)
			}
		}()
	} else {
		logger.Warn("no ws_url configured, running on idle polling only")
	}

	if enableTUI {
		// TUI mode: session in the background, TUI owns the terminal
		errCh := make(chan error, 1)
		go func() {
			logger.Info("session starting in background", "config", *configPath)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("session error", "err", err)
				errCh <- err
			}
		}()

		m := tui.NewModel(sess, sess, cfg.TUI.RefreshInterval)
		p := tea.NewProgram(m, tea.WithAltScreen())

		go func() {
			if err := <-errCh; err != nil {
				p.Send(tea.Quit())
			}
		}()

		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			os.Exit(1)
		}
		stop()
	} else {
		logger.Info("session starting (headless)", "config", *configPath)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session error", "err", err)
			os.Exit(1)
		}
	}
}
