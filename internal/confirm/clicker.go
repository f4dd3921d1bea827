package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
)

// ClickerOptions configure the automated browser.
type ClickerOptions struct {
	ExecPath    string // empty uses the Chrome found on PATH
	UserDataDir string // persistent profile, so the Netflix session survives
	Headless    bool

	Selector  string // CSS selector of the confirm button
	TextRegex string // fallback: button or link text pattern

	NavTimeout   time.Duration
	ClickTimeout time.Duration
}

// Clicker drives Chrome to the link and presses the confirm button.
type Clicker struct {
	opts   ClickerOptions
	logger *slog.Logger
}

// NewClicker validates opts. The text pattern must be a valid regular
// expression even though it runs in the page.
func NewClicker(opts ClickerOptions, logger *slog.Logger) (*Clicker, error) {
	if opts.Selector == "" && opts.TextRegex == "" {
		return nil, errors.New("clicker needs a selector or a text pattern")
	}
	if opts.TextRegex != "" {
		if _, err := regexp.Compile(opts.TextRegex); err != nil {
			return nil, fmt.Errorf("confirm text regex: %w", err)
		}
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clicker{opts: opts, logger: logger}, nil
}

func (c *Clicker) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", c.opts.Headless))
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(c.opts.UserDataDir))
	}
	return opts
}

// Confirm opens url, clicks the confirm control and keeps the page open for
// closeDelay. It reports false when no control could be clicked.
func (c *Clicker) Confirm(ctx context.Context, url string, closeDelay time.Duration) (bool, error) {
	if err := checkURL(url); err != nil {
		return false, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			c.logger.Debug(fmt.Sprintf(format, args...))
		}))
	defer cancelTab()

	// Start the browser with the tab's own context; a timeout on the first
	// Run would tear the browser down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		return false, fmt.Errorf("start browser: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, c.opts.NavTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	cancelNav()
	if err != nil {
		return false, fmt.Errorf("navigate: %w", err)
	}

	clicked := c.clickSelector(tabCtx) || c.clickByText(tabCtx)
	if !clicked {
		c.logger.Warn("confirm button not found", "url", url)
		return false, nil
	}
	c.logger.Info("confirm button clicked", "url", url)

	if closeDelay > 0 {
		t := time.NewTimer(closeDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	return true, nil
}

func (c *Clicker) clickSelector(ctx context.Context) bool {
	if c.opts.Selector == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.ClickTimeout)
	defer cancel()
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(c.opts.Selector, chromedp.ByQuery),
		chromedp.Click(c.opts.Selector, chromedp.ByQuery),
	)
	if err != nil {
		c.logger.Debug("selector click failed", "selector", c.opts.Selector, "err", err)
		return false
	}
	return true
}

// clickByText polls the page until a control whose text matches the pattern
// appears and is clicked, or the click timeout elapses.
func (c *Clicker) clickByText(ctx context.Context) bool {
	if c.opts.TextRegex == "" {
		return false
	}
	script, err := textClickScript(c.opts.TextRegex)
	if err != nil {
		return false
	}
	deadline := time.Now().Add(c.opts.ClickTimeout)
	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
			c.logger.Debug("text click failed", "err", err)
			return false
		}
		if ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// textClickScript builds an expression that clicks the first button-like
// element whose text matches pattern (case-insensitive) and reports whether
// it did.
func textClickScript(pattern string) (string, error) {
	quoted, err := json.Marshal(pattern)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const re = new RegExp(%s, "i");
  const nodes = document.querySelectorAll("button, a, [role=button], input[type=submit]");
  for (const el of nodes) {
    const text = (el.innerText || el.value || "").trim();
    if (re.test(text)) { el.click(); return true; }
  }
  return false;
})()`, quoted), nil
}
