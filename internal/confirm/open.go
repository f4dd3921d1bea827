// Package confirm provides the actors that act on a confirmation link.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Opener hands the link to the desktop's default browser and leaves the
// click to the user. Any http(s) link counts as a success even when the
// launcher fails; anything else is refused.
type Opener struct {
	Logger *slog.Logger
	// open defaults to OpenBrowser.
	open func(string) error
}

// NewOpener returns an Opener using the platform browser launcher.
func NewOpener(logger *slog.Logger) *Opener {
	return &Opener{Logger: logger, open: OpenBrowser}
}

func (o *Opener) Confirm(_ context.Context, url string, _ time.Duration) (bool, error) {
	open := o.open
	if open == nil {
		open = OpenBrowser
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkURL(url); err != nil {
		return false, err
	}
	if err := open(url); err != nil {
		logger.Warn("could not open browser", "url", url, "err", err)
	} else {
		logger.Info("opened in browser", "url", url)
	}
	return true, nil
}

// OpenBrowser opens an HTTP(S) URL in the user's default browser.
func OpenBrowser(url string) error {
	if err := checkURL(url); err != nil {
		return err
	}

	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start()
}

// checkURL refuses anything but http(s) so a crafted link never reaches a shell handler.
func checkURL(url string) error {
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("refusing to open non-HTTP URL: %s", url)
	}
	return nil
}
