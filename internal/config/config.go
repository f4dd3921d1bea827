// Package config resolves settings from flags, environment, .env, an optional
// YAML file and the dashboard's stored settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rsm23/netflix-home-auto-confirm/internal/extract"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"

	DefaultSender           = "info@account.netflix.com"
	DefaultConfirmSelector  = `[data-uia="set-primary-location-action"]`
	DefaultConfirmTextRegex = `Confirmer\s+la\s+mise\s+à\s+jour`
)

// GmailConfig holds the OAuth settings.
type GmailConfig struct {
	OAuthPort int
}

// IMAPConfig holds the IMAP account. Password comes from env or keyring.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	Mailbox  string
}

// BrowserConfig drives the auto-click actor.
type BrowserConfig struct {
	ExecPath        string
	UserDataDir     string
	Headless        bool
	ConfirmSelector string
	ConfirmText     string
	NavTimeout      time.Duration
	ClickTimeout    time.Duration
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string // text or json
	Dir    string // also write to <dir>/homeconfirm.log when set
}

// Config is the resolved application configuration.
type Config struct {
	Provider  string
	ConfigDir string

	Sender           string
	Query            string
	LinkSubstrings   []string
	RequesterMarkers []string

	OpenOnce   bool
	Debug      bool
	AutoClick  bool
	CloseDelay time.Duration
	Interval   time.Duration
	OutputDir  string
	Label      string

	// Since is the initial anchor of a one-shot run; unset means now.
	Since model.Anchor

	Gmail   GmailConfig
	IMAP    IMAPConfig
	Browser BrowserConfig
	Log     LogConfig
}

// Settings extracts the operator-tunable subset.
func (c *Config) Settings() model.Settings {
	return model.Settings{
		Interval:   c.Interval,
		CloseDelay: c.CloseDelay,
		OutputDir:  c.OutputDir,
		OpenOnce:   c.OpenOnce,
		AutoClick:  c.AutoClick,
	}
}

// ApplySettings copies operator-tunable values back into c.
func (c *Config) ApplySettings(s model.Settings) {
	c.Interval = s.Interval
	c.CloseDelay = s.CloseDelay
	c.OutputDir = s.OutputDir
	c.OpenOnce = s.OpenOnce
	c.AutoClick = s.AutoClick
}

// Validate rejects values that would make a cycle misbehave.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGmail, ProviderIMAP:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Query) == "" {
		errs = append(errs, errors.New("query must not be empty"))
	}
	if len(c.LinkSubstrings) == 0 {
		errs = append(errs, errors.New("link substrings must not be empty"))
	}
	if c.Gmail.OAuthPort < 0 || c.Gmail.OAuthPort > 65535 {
		errs = append(errs, fmt.Errorf("oauth port out of range: %d", c.Gmail.OAuthPort))
	}
	if c.Provider == ProviderIMAP {
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			errs = append(errs, errors.New("imap.host and imap.username are required"))
		}
		if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
			errs = append(errs, fmt.Errorf("imap port out of range: %d", c.IMAP.Port))
		}
	}
	if c.Browser.ConfirmText != "" {
		if _, err := regexp.Compile(c.Browser.ConfirmText); err != nil {
			errs = append(errs, fmt.Errorf("confirm text regex: %w", err))
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Options locate the optional files.
type Options struct {
	EnvFile    string // default .env in the working directory
	ConfigFile string // default <config_dir>/config.yaml
}

// Loader layers the sources in a viper instance.
type Loader struct {
	v *viper.Viper
}

// legacyEnv lists the environment names each key also answers to.
var legacyEnv = map[string][]string{
	"sender":                     {"SENDER_EMAIL"},
	"query":                      {"GMAIL_QUERY", "GMAIL_QUERY_DEFAULT"},
	"link_substrings":            {"LINK_SUBSTRINGS"},
	"interval":                   {"POLL_INTERVAL"},
	"output_dir":                 {"OUTPUT_DIR"},
	"label":                      {"TARGET_LABEL"},
	"gmail.oauth_port":           {"OAUTH_LOCAL_SERVER_PORT"},
	"imap.password":              {"IMAP_PASSWORD"},
	"browser.user_data_dir":      {"BROWSER_USER_DATA_DIR"},
	"browser.confirm_selector":   {"CONFIRM_BUTTON_SELECTOR"},
	"browser.confirm_text_regex": {"CONFIRM_TEXT_REGEX"},
	"log.level":                  {"LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGmail)
	v.SetDefault("config_dir", "~/.config/homeconfirm")
	v.SetDefault("sender", DefaultSender)
	v.SetDefault("query", "")
	v.SetDefault("link_substrings", extract.DefaultLinkSubstrings)
	v.SetDefault("requester_markers", extract.DefaultRequesterMarkers)
	v.SetDefault("open_once", false)
	v.SetDefault("debug", false)
	v.SetDefault("auto_click", false)
	v.SetDefault("close_delay", 10)
	v.SetDefault("interval", 60)
	v.SetDefault("since_epoch_ms", int64(-1))
	v.SetDefault("output_dir", "./out")
	v.SetDefault("label", "")
	v.SetDefault("gmail.oauth_port", 0)
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.confirm_selector", DefaultConfirmSelector)
	v.SetDefault("browser.confirm_text_regex", DefaultConfirmTextRegex)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.click_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "")
}

// NewLoader reads .env, binds environment and flags, then reads the YAML
// file if present. fs may be nil.
func NewLoader(fs *pflag.FlagSet, opts Options) (*Loader, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOMECONFIRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := "HOMECONFIRM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	l := &Loader{v: v}
	cfgFile := opts.ConfigFile
	if cfgFile == "" {
		cfgFile = filepath.Join(l.ConfigDir(), "config.yaml")
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
	}
	return l, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// ConfigDir returns the resolved configuration directory with ~ expanded.
func (l *Loader) ConfigDir() string {
	return expandHome(l.v.GetString("config_dir"))
}

// Overlay installs stored dashboard settings beneath every explicit source.
func (l *Loader) Overlay(s model.Settings) {
	l.v.SetDefault("interval", int(s.Interval/time.Second))
	l.v.SetDefault("close_delay", int(s.CloseDelay/time.Second))
	if s.OutputDir != "" {
		l.v.SetDefault("output_dir", s.OutputDir)
	}
	l.v.SetDefault("open_once", s.OpenOnce)
	l.v.SetDefault("auto_click", s.AutoClick)
}

// Config resolves and validates the configuration.
func (l *Loader) Config() (*Config, error) {
	v := l.v
	c := &Config{
		Provider:         strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		ConfigDir:        l.ConfigDir(),
		Sender:           strings.TrimSpace(v.GetString("sender")),
		Query:            strings.TrimSpace(v.GetString("query")),
		LinkSubstrings:   list(v.Get("link_substrings")),
		RequesterMarkers: list(v.Get("requester_markers")),
		OpenOnce:         v.GetBool("open_once"),
		Debug:            v.GetBool("debug"),
		AutoClick:        v.GetBool("auto_click"),
		CloseDelay:       time.Duration(v.GetInt("close_delay")) * time.Second,
		Interval:         time.Duration(v.GetInt("interval")) * time.Second,
		OutputDir:        v.GetString("output_dir"),
		Label:            strings.TrimSpace(v.GetString("label")),
		Gmail:            GmailConfig{OAuthPort: v.GetInt("gmail.oauth_port")},
		IMAP: IMAPConfig{
			Host:     v.GetString("imap.host"),
			Port:     v.GetInt("imap.port"),
			Username: v.GetString("imap.username"),
			Password: v.GetString("imap.password"),
			TLS:      v.GetBool("imap.tls"),
			Mailbox:  v.GetString("imap.mailbox"),
		},
		Browser: BrowserConfig{
			ExecPath:        v.GetString("browser.exec_path"),
			UserDataDir:     expandHome(v.GetString("browser.user_data_dir")),
			Headless:        v.GetBool("browser.headless"),
			ConfirmSelector: v.GetString("browser.confirm_selector"),
			ConfirmText:     v.GetString("browser.confirm_text_regex"),
			NavTimeout:      v.GetDuration("browser.nav_timeout"),
			ClickTimeout:    v.GetDuration("browser.click_timeout"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
			Dir:    expandHome(v.GetString("log.dir")),
		},
	}
	if c.Sender == "" {
		c.Sender = DefaultSender
	}
	if c.Query == "" {
		c.Query = DefaultQuery(c.Sender)
	}
	if ms := v.GetInt64("since_epoch_ms"); ms >= 0 {
		c.Since = model.AnchorAt(ms)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultQuery is the search used when none is configured.
func DefaultQuery(sender string) string {
	addr := senderAddress(sender)
	if addr == "" {
		addr = strings.TrimSpace(sender)
	}
	return "from:" + addr + " is:unread in:inbox"
}

// list accepts a comma-separated string or a YAML/flag list.
func list(raw any) []string {
	var items []string
	switch t := raw.(type) {
	case string:
		items = strings.Split(t, ",")
	case []string:
		items = t
	case []any:
		for _, x := range t {
			items = append(items, fmt.Sprint(x))
		}
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
