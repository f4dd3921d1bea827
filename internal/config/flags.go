package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"provider":        "provider",
	"config-dir":      "config_dir",
	"sender":          "sender",
	"query":           "query",
	"link-substrings": "link_substrings",
	"open-once":       "open_once",
	"debug":           "debug",
	"auto-click":      "auto_click",
	"close-delay":     "close_delay",
	"interval":        "interval",
	"since-epoch-ms":  "since_epoch_ms",
	"output-dir":      "output_dir",
	"label":           "label",
	"oauth-port":      "gmail.oauth_port",
	"imap-host":       "imap.host",
	"imap-port":       "imap.port",
	"imap-user":       "imap.username",
	"imap-mailbox":    "imap.mailbox",
	"browser-path":    "browser.exec_path",
	"browser-profile": "browser.user_data_dir",
	"headless":        "browser.headless",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-dir":         "log.dir",
}

// FlagSet returns the flags of a subcommand; --since-epoch-ms exists only
// for once. Defaults are left to
// the loader so unset flags never shadow env or file values.
func FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML config file (default <config-dir>/config.yaml)")
	fs.String("env-file", "", "dotenv file (default .env)")

	fs.String("provider", "", "mailbox provider: gmail or imap")
	fs.String("config-dir", "", "directory holding credentials, token and settings")
	fs.String("sender", "", "sender address of the confirmation mail")
	fs.StringP("query", "q", "", "mailbox search query")
	fs.StringSlice("link-substrings", nil, "URL substrings that identify the confirmation link")
	fs.Bool("open-once", false, "never act on the same link twice in a row")
	fs.Bool("debug", false, "log messages without a link")
	fs.Bool("auto-click", false, "click the confirm button in an automated browser")
	fs.Int("close-delay", 0, "seconds to keep the confirmation page open")
	fs.IntP("interval", "i", 0, "seconds between polls")
	if name == "once" {
		fs.Int64("since-epoch-ms", -1, "initial anchor in epoch milliseconds")
	}
	fs.StringP("output-dir", "o", "", "directory for result records")
	fs.String("label", "", "label or folder to move actioned messages to")
	fs.Int("oauth-port", 0, "fixed loopback port for the OAuth redirect")
	fs.String("imap-host", "", "IMAP server host")
	fs.Int("imap-port", 0, "IMAP server port")
	fs.String("imap-user", "", "IMAP username")
	fs.String("imap-mailbox", "", "IMAP mailbox to watch")
	fs.String("browser-path", "", "Chrome executable")
	fs.String("browser-profile", "", "persistent browser profile directory")
	fs.Bool("headless", false, "run the automated browser headless")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
	fs.String("log-dir", "", "also write logs to this directory")
	return fs
}

// bindFlags binds every known flag present in fs. Viper only prefers a
// bound flag over other sources once it has been set on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Files returns the --config and --env-file values of a parsed flag set.
func Files(fs *pflag.FlagSet) Options {
	var o Options
	if fs == nil {
		return o
	}
	o.ConfigFile, _ = fs.GetString("config")
	o.EnvFile, _ = fs.GetString("env-file")
	return o
}
