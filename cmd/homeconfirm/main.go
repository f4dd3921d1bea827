package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/rsm23/netflix-home-auto-confirm/internal/app"
	"github.com/rsm23/netflix-home-auto-confirm/internal/config"
	"github.com/rsm23/netflix-home-auto-confirm/internal/credential"
	"github.com/rsm23/netflix-home-auto-confirm/internal/intake"
	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
	"github.com/rsm23/netflix-home-auto-confirm/internal/store"
	"github.com/rsm23/netflix-home-auto-confirm/internal/tui"
	"github.com/rsm23/netflix-home-auto-confirm/internal/watch"
)

const usage = `usage: homeconfirm [once|watch|dashboard|login|logout] [flags]

  once       run a single intake cycle and exit with its code (default)
  watch      poll the mailbox until interrupted
  dashboard  interactive control surface around the poller
  login      authorize Gmail or store the IMAP password
  logout     forget the Gmail token or the stored IMAP password
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "once"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "once", "watch", "dashboard", "login", "logout":
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return int(intake.CodeFailed)
	}

	fs := config.FlagSet(cmd)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return int(intake.CodeFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := config.NewLoader(fs, config.Files(fs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load configuration: %v\n", err)
		return int(intake.CodeFailed)
	}

	var db *store.SQLiteStore
	if cmd == "watch" || cmd == "dashboard" {
		db, err = openSettings(ctx, loader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open settings database: %v\n", err)
			return int(intake.CodeFailed)
		}
		defer db.Close()
	}

	cfg, err := loader.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return int(intake.CodeFailed)
	}

	logger, closeLog, err := newLogger(cfg.Log, cmd == "dashboard")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open log file: %v\n", err)
		return int(intake.CodeFailed)
	}
	defer closeLog()

	switch cmd {
	case "login":
		err = login(ctx, cfg)
	case "logout":
		err = logout(cfg, credential.New(cfg.ConfigDir))
	case "watch":
		err = watchLoop(ctx, cfg, db, logger)
	case "dashboard":
		err = dashboard(ctx, cfg, db, logger)
	default:
		return once(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error(cmd+" failed", "err", err)
		if mailbox.IsAuthError(err) && cmd != "login" && cmd != "logout" {
			fmt.Fprintln(os.Stderr, "Mailbox authorization failed; run: homeconfirm login")
		}
		return int(intake.CodeFailed)
	}
	return 0
}

// openSettings overlays the stored dashboard settings beneath every explicit
// configuration source.
func openSettings(ctx context.Context, loader *config.Loader) (*store.SQLiteStore, error) {
	dir := loader.ConfigDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(store.DefaultPath(dir))
	if err != nil {
		return nil, err
	}
	base, err := loader.Config()
	if err != nil {
		// Reported by the caller's own Config call.
		return db, nil
	}
	stored, found, err := db.LoadSettings(ctx, base.Settings())
	if err != nil {
		db.Close()
		return nil, err
	}
	if found {
		loader.Overlay(stored)
	}
	return db, nil
}

func once(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	cycle, err := build(ctx, cfg, cfg.AutoClick, logger)
	if err != nil {
		logger.Error("setup failed", "err", err)
		if mailbox.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, "Mailbox authorization failed; run: homeconfirm login")
		}
		return int(intake.CodeFailed)
	}

	sess := &intake.Session{Anchor: cfg.Since}
	if !sess.Anchor.Set {
		sess.Anchor = model.AnchorNow(time.Now())
	}
	res, err := cycle.RunOnce(ctx, sess, app.Options(cfg))
	if err != nil {
		logger.Error("cycle failed", "err", err)
		return int(intake.CodeFailed)
	}
	return int(res.Code)
}

func watchLoop(ctx context.Context, cfg *config.Config, db *store.SQLiteStore, logger *slog.Logger) error {
	cycle, err := build(ctx, cfg, cfg.AutoClick, logger)
	if err != nil {
		return err
	}
	ctrl, err := app.NewController(ctx, cfg, cycle, db, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Start(); err != nil {
		return err
	}
	logger.Info("watching", "provider", cfg.Provider, "interval", cfg.Interval, "query", cfg.Query)
	<-ctx.Done()
	logger.Info("shutting down after the cycle in flight")
	ctrl.Stop()
	return nil
}

func dashboard(ctx context.Context, cfg *config.Config, db *store.SQLiteStore, logger *slog.Logger) error {
	cycle, err := build(ctx, cfg, cfg.AutoClick, logger)
	if err != nil {
		return err
	}
	ctrl, err := app.NewController(ctx, cfg, cycle, db, logger)
	if err != nil {
		return err
	}
	defer ctrl.Stop()

	appModel := tui.NewAppModel(ctrl)
	p := tea.NewProgram(&appModel, tea.WithAltScreen(), tea.WithContext(ctx))
	ctrl.Scheduler().OnEvent(func(ev watch.Event) {
		p.Send(tui.CycleEventMsg(ev))
	})
	if err := ctrl.Start(); err != nil {
		return err
	}

	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

func build(ctx context.Context, cfg *config.Config, autoClick bool, logger *slog.Logger) (*intake.Cycle, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	gw, err := app.NewGateway(ctx, cfg, credential.New(cfg.ConfigDir), true)
	if err != nil {
		return nil, err
	}
	actor, err := app.NewActor(cfg, autoClick, logger)
	if err != nil {
		return nil, err
	}
	return app.NewCycle(cfg, gw, actor, logger), nil
}
