package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rsm23/netflix-home-auto-confirm/internal/config"
	"github.com/rsm23/netflix-home-auto-confirm/internal/confirm"
	"github.com/rsm23/netflix-home-auto-confirm/internal/intake"
	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
	"github.com/rsm23/netflix-home-auto-confirm/internal/watch"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// emptyGateway never finds anything.
type emptyGateway struct{}

func (emptyGateway) Search(context.Context, string, int64) ([]string, error) { return nil, nil }
func (emptyGateway) Fetch(context.Context, string) (*model.MailMessage, error) {
	return nil, mailbox.ErrNotFound
}
func (emptyGateway) FetchAttachment(context.Context, string, string) (string, error) {
	return "", errors.New("none")
}
func (emptyGateway) MarkRead(context.Context, string) error { return nil }

type fakeSaver struct {
	saved []model.Settings
	err   error
}

func (f *fakeSaver) SaveSettings(_ context.Context, s model.Settings) error {
	f.saved = append(f.saved, s)
	return f.err
}

type fakeSecrets map[string]string

func (f fakeSecrets) Get(key string) (string, error) {
	if v, ok := f[key]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

type nopActor struct{ name string }

func (nopActor) Confirm(context.Context, string, time.Duration) (bool, error) { return true, nil }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Provider:   config.ProviderGmail,
		Query:      "from:x",
		Interval:   time.Hour,
		CloseDelay: 10 * time.Second,
		OutputDir:  filepath.Join(t.TempDir(), "out"),
		Browser:    config.BrowserConfig{ConfirmSelector: "#go"},
	}
}

func newController(t *testing.T, saver SettingsSaver) (*Controller, *intake.Cycle) {
	t.Helper()
	cfg := testConfig(t)
	cycle := NewCycle(cfg, emptyGateway{}, nopActor{"open"}, quiet())
	c, err := NewController(context.Background(), cfg, cycle, saver, quiet())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	c.newActor = func(_ *config.Config, auto bool, _ *slog.Logger) (intake.Actor, error) {
		if auto {
			return nopActor{"click"}, nil
		}
		return nopActor{"open"}, nil
	}
	t.Cleanup(c.Stop)
	return c, cycle
}

func TestApply_InvalidKeepsPrevious(t *testing.T) {
	saver := &fakeSaver{}
	c, cycle := newController(t, saver)
	before := c.Settings()

	bad := before
	bad.Interval = 0
	if err := c.Apply(bad); err == nil {
		t.Fatal("zero interval applied")
	}
	bad = before
	bad.CloseDelay = -time.Second
	if err := c.Apply(bad); err == nil {
		t.Fatal("negative close delay applied")
	}
	if c.Settings() != before || cycle.CloseDelay != before.CloseDelay || c.Status().Interval != before.Interval {
		t.Fatal("rejected settings leaked")
	}
	if len(saver.saved) != 0 {
		t.Fatalf("rejected settings saved: %v", saver.saved)
	}
}

func TestApply_ReconfiguresAndRestarts(t *testing.T) {
	saver := &fakeSaver{}
	c, cycle := newController(t, saver)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}

	next := model.Settings{
		Interval:   5 * time.Second,
		CloseDelay: 0,
		OutputDir:  filepath.Join(t.TempDir(), "records"),
		OpenOnce:   true,
		AutoClick:  true,
	}
	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.Status().State != watch.StateRunning {
		t.Fatalf("scheduler not restarted: %s", c.Status().State)
	}
	if c.Status().Interval != 5*time.Second || cycle.CloseDelay != 0 {
		t.Fatalf("not applied: interval %s close %s", c.Status().Interval, cycle.CloseDelay)
	}
	if a, ok := cycle.Actor.(nopActor); !ok || a.name != "click" {
		t.Fatalf("actor not switched: %#v", cycle.Actor)
	}
	if r, ok := cycle.Recorder.(intake.FileRecorder); !ok || r.Dir != next.OutputDir {
		t.Fatalf("recorder: %#v", cycle.Recorder)
	}
	if len(saver.saved) != 1 || saver.saved[0] != next {
		t.Fatalf("saved: %v", saver.saved)
	}
}

func TestApply_SaveFailureStillApplies(t *testing.T) {
	c, _ := newController(t, &fakeSaver{err: errors.New("disk full")})
	next := c.Settings()
	next.Interval = 2 * time.Second
	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.Settings().Interval != 2*time.Second {
		t.Fatal("settings not applied")
	}
	if c.Status().State == watch.StateRunning {
		t.Fatal("idle scheduler was started by Apply")
	}
}

func TestNewActor(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewActor(cfg, false, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*confirm.Opener); !ok {
		t.Fatalf("want opener, got %T", a)
	}
	a, err = NewActor(cfg, true, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*confirm.Clicker); !ok {
		t.Fatalf("want clicker, got %T", a)
	}
	cfg.Browser = config.BrowserConfig{}
	if _, err := NewActor(cfg, true, quiet()); err == nil {
		t.Fatal("clicker without selector or pattern accepted")
	}
}

func TestNewGateway_IMAP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = config.ProviderIMAP
	cfg.IMAP = config.IMAPConfig{Host: "imap.example.com", Port: 993, Username: "me", TLS: true}

	_, err := NewGateway(context.Background(), cfg, fakeSecrets{}, false)
	if !mailbox.IsAuthError(err) {
		t.Fatalf("missing password should be an auth error, got %v", err)
	}
	gw, err := NewGateway(context.Background(), cfg, fakeSecrets{"imap:me": "pw"}, false)
	if err != nil || gw == nil {
		t.Fatalf("gateway: %v", err)
	}
	if _, ok := gw.(mailbox.Mover); !ok {
		t.Fatal("imap gateway should support moving")
	}

	cfg.Provider = "pop3"
	if _, err := NewGateway(context.Background(), cfg, nil, false); err == nil {
		t.Fatal("unknown provider accepted")
	}
}

func TestNewGateway_GmailWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.ConfigDir = t.TempDir()
	if _, err := NewGateway(context.Background(), cfg, nil, false); err == nil {
		t.Fatal("expected missing client_secret.json error")
	}
}
