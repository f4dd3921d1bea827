package imapbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-imap/v2"
)

// ParseQuery translates the subset of Gmail search syntax the watcher uses
// into IMAP search criteria:
//
//	from:X to:X subject:X   header match
//	is:unread | is:read     \Seen flag
//	is:starred              \Flagged flag
//	newer_than:Nd           SINCE (days, weeks with w)
//	in:X label:X            ignored, the mailbox is configured separately
//	word "two words"        TEXT
//
// A leading '-' negates a term. Quoted values keep their spaces.
func ParseQuery(q string, now time.Time) (*imap.SearchCriteria, error) {
	crit := &imap.SearchCriteria{}
	for _, tok := range tokenize(q) {
		neg := false
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			neg, tok = true, tok[1:]
		}
		target := crit
		if neg {
			target = &imap.SearchCriteria{}
		}
		if err := apply(target, tok, now); err != nil {
			return nil, err
		}
		if neg {
			crit.Not = append(crit.Not, *target)
		}
	}
	return crit, nil
}

func apply(c *imap.SearchCriteria, tok string, now time.Time) error {
	key, val, ok := strings.Cut(tok, ":")
	if !ok || val == "" {
		c.Text = append(c.Text, unquote(tok))
		return nil
	}
	val = unquote(val)
	switch strings.ToLower(key) {
	case "from":
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: val})
	case "to":
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "To", Value: val})
	case "subject":
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: val})
	case "is":
		switch strings.ToLower(val) {
		case "unread":
			c.NotFlag = append(c.NotFlag, imap.FlagSeen)
		case "read":
			c.Flag = append(c.Flag, imap.FlagSeen)
		case "starred":
			c.Flag = append(c.Flag, imap.FlagFlagged)
		default:
			return fmt.Errorf("unsupported query term %q", tok)
		}
	case "in", "label":
	case "newer_than":
		d, err := age(val)
		if err != nil {
			return err
		}
		c.Since = now.Add(-d)
	default:
		// Unknown operators are searched as text, like a URL with a colon.
		c.Text = append(c.Text, unquote(tok))
	}
	return nil
}

func age(v string) (time.Duration, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("invalid newer_than %q", v)
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid newer_than %q", v)
	}
	day := 24 * time.Hour
	switch v[len(v)-1] {
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	}
	return 0, fmt.Errorf("invalid newer_than %q", v)
}

// tokenize splits on whitespace outside double quotes.
func tokenize(q string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range q {
		switch {
		case r == '"':
			quote = !quote
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !quote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
