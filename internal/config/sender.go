package config

import (
	"net/mail"
	"strings"
)

// senderAddress reduces a configured sender such as
// "Netflix <Info@Account.Netflix.com>" to the bare lowercased address.
// A list yields its first parseable entry. Returns "" when nothing parses.
func senderAddress(sender string) string {
	if strings.TrimSpace(sender) == "" {
		return ""
	}
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		addr = nil
		for _, p := range strings.Split(sender, ",") {
			if a, e := mail.ParseAddress(strings.TrimSpace(p)); e == nil {
				addr = a
				break
			}
		}
		if addr == nil {
			return ""
		}
	}
	return strings.ToLower(strings.TrimSpace(addr.Address))
}
