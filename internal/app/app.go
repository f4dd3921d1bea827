// Package app assembles the watcher from a resolved configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rsm23/netflix-home-auto-confirm/internal/config"
	"github.com/rsm23/netflix-home-auto-confirm/internal/confirm"
	"github.com/rsm23/netflix-home-auto-confirm/internal/credential"
	"github.com/rsm23/netflix-home-auto-confirm/internal/extract"
	"github.com/rsm23/netflix-home-auto-confirm/internal/gmail"
	"github.com/rsm23/netflix-home-auto-confirm/internal/imapbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/intake"
	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
	"github.com/rsm23/netflix-home-auto-confirm/internal/watch"
)

// Secrets is the credential lookup used for the IMAP password.
type Secrets interface {
	Get(key string) (string, error)
}

// NewGateway connects the configured mailbox provider. interactive allows
// the Gmail consent flow to run when no valid token is cached.
func NewGateway(ctx context.Context, cfg *config.Config, secrets Secrets, interactive bool) (mailbox.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderGmail:
		svc, err := gmail.NewService(ctx, cfg.ConfigDir, gmail.AuthOptions{
			Port:        cfg.Gmail.OAuthPort,
			Interactive: interactive,
			Open:        confirm.OpenBrowser,
		})
		if err != nil {
			return nil, err
		}
		return gmail.NewGateway(svc), nil
	case config.ProviderIMAP:
		password := cfg.IMAP.Password
		if password == "" && secrets != nil {
			p, err := secrets.Get(credential.IMAPPasswordKey(cfg.IMAP.Username))
			if err != nil {
				return nil, &mailbox.AuthError{Provider: config.ProviderIMAP, Message: "no stored password, run login", Err: err}
			}
			password = p
		}
		gw, err := imapbox.NewGateway(imapbox.Config{
			Host:     cfg.IMAP.Host,
			Port:     cfg.IMAP.Port,
			Username: cfg.IMAP.Username,
			Password: password,
			TLS:      cfg.IMAP.TLS,
			Mailbox:  cfg.IMAP.Mailbox,
		})
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// NewActor picks the browser automation or the plain opener.
func NewActor(cfg *config.Config, autoClick bool, logger *slog.Logger) (intake.Actor, error) {
	if !autoClick {
		return confirm.NewOpener(logger), nil
	}
	c, err := confirm.NewClicker(confirm.ClickerOptions{
		ExecPath:     cfg.Browser.ExecPath,
		UserDataDir:  cfg.Browser.UserDataDir,
		Headless:     cfg.Browser.Headless,
		Selector:     cfg.Browser.ConfirmSelector,
		TextRegex:    cfg.Browser.ConfirmText,
		NavTimeout:   cfg.Browser.NavTimeout,
		ClickTimeout: cfg.Browser.ClickTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCycle wires one intake cycle.
func NewCycle(cfg *config.Config, gw mailbox.Gateway, actor intake.Actor, logger *slog.Logger) *intake.Cycle {
	return &intake.Cycle{
		Gateway:          gw,
		Actor:            actor,
		Recorder:         intake.FileRecorder{Dir: cfg.OutputDir},
		Logger:           logger,
		LinkPolicy:       extract.LinkPolicy{Substrings: cfg.LinkSubstrings},
		RequesterMarkers: cfg.RequesterMarkers,
		BatchSize:        intake.DefaultBatchSize,
		CloseDelay:       cfg.CloseDelay,
		Label:            cfg.Label,
		Debug:            cfg.Debug,
	}
}

// Options derives the per-cycle inputs.
func Options(cfg *config.Config) intake.Options {
	return intake.Options{Query: cfg.Query, OpenOnce: cfg.OpenOnce}
}

// SettingsSaver persists dashboard edits.
type SettingsSaver interface {
	SaveSettings(ctx context.Context, s model.Settings) error
}

// Controller drives a scheduler on behalf of the dashboard.
type Controller struct {
	ctx    context.Context
	cfg    *config.Config
	cycle  *intake.Cycle
	sched  *watch.Scheduler
	saver  SettingsSaver
	logger *slog.Logger

	// newActor is swapped in tests.
	newActor func(*config.Config, bool, *slog.Logger) (intake.Actor, error)

	mu       sync.Mutex
	settings model.Settings
}

// NewController builds the scheduler around cycle. saver may be nil.
func NewController(ctx context.Context, cfg *config.Config, cycle *intake.Cycle, saver SettingsSaver, logger *slog.Logger) (*Controller, error) {
	sched, err := watch.New(cycle, watch.Config{
		Interval: cfg.Interval,
		Options:  Options(cfg),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &Controller{
		ctx:      ctx,
		cfg:      cfg,
		cycle:    cycle,
		sched:    sched,
		saver:    saver,
		logger:   logger,
		newActor: NewActor,
		settings: cfg.Settings(),
	}, nil
}

// Scheduler exposes the underlying scheduler, for event subscription.
func (c *Controller) Scheduler() *watch.Scheduler { return c.sched }

// Start runs the scheduler; starting a running scheduler is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start()
}

func (c *Controller) start() error {
	err := c.sched.Start(c.ctx)
	if errors.Is(err, watch.ErrAlreadyRunning) {
		return nil
	}
	return err
}

// Stop returns once the cycle in flight, if any, has finished.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched.Stop()
}

func (c *Controller) Trigger() { c.sched.Trigger() }

func (c *Controller) Status() watch.Status { return c.sched.Status() }

// Settings returns the settings currently in effect.
func (c *Controller) Settings() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Apply validates s, then restarts the scheduler with it and saves it. On
// any error the previous settings stay in effect.
func (c *Controller) Apply(s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	actor := c.cycle.Actor
	if s.AutoClick != c.settings.AutoClick {
		a, err := c.newActor(c.cfg, s.AutoClick, c.logger)
		if err != nil {
			return fmt.Errorf("switch actor: %w", err)
		}
		actor = a
	}
	if s.OutputDir != "" && s.OutputDir != c.settings.OutputDir {
		if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
			return fmt.Errorf("output dir: %w", err)
		}
	}

	wasRunning := c.sched.Status().State == watch.StateRunning
	c.sched.Stop()

	// The loop is stopped, so the cycle can be changed safely.
	c.cycle.Actor = actor
	c.cycle.CloseDelay = s.CloseDelay
	c.cycle.Recorder = intake.FileRecorder{Dir: s.OutputDir}
	if err := c.sched.SetInterval(s.Interval); err != nil {
		return err
	}
	opts := Options(c.cfg)
	opts.OpenOnce = s.OpenOnce
	c.sched.SetOptions(opts)
	c.settings = s

	if c.saver != nil {
		if err := c.saver.SaveSettings(c.ctx, s); err != nil {
			c.logger.Warn("could not persist settings", "err", err)
		}
	}
	c.logger.Info("settings applied", "interval", s.Interval, "close_delay", s.CloseDelay,
		"output_dir", s.OutputDir, "open_once", s.OpenOnce, "auto_click", s.AutoClick)

	if wasRunning {
		return c.start()
	}
	return nil
}
