// Package extract finds the confirmation link and the requester attribution
// inside decoded message parts.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// DefaultLinkSubstrings mark the primary-location confirmation page.
var DefaultLinkSubstrings = []string{"update-primary-location", "update-primary", "set-primary"}

// LinkPolicy decides which URLs are actionable.
type LinkPolicy struct {
	Substrings []string // matched case-insensitively
}

// Matches reports whether u contains any configured substring.
func (p LinkPolicy) Matches(u string) bool {
	subs := p.Substrings
	if len(subs) == 0 {
		subs = DefaultLinkSubstrings
	}
	lower := strings.ToLower(u)
	for _, s := range subs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

var urlRe = regexp.MustCompile(`(?i)https?://\S+`)

// trailing characters that commonly wrap a URL in prose
const urlTrimCutset = `).,>]'"`

// Link returns the first actionable URL. HTML anchors are searched before any
// plain-text part; absence is reported with ok=false.
func Link(parts []model.ContentPart, policy LinkPolicy) (string, bool) {
	htmlDocs, textDocs := bucket(parts)
	for _, doc := range htmlDocs {
		if href, ok := anchorHref(doc, policy); ok {
			return href, true
		}
	}
	for _, doc := range textDocs {
		if u, ok := textURL(doc, policy); ok {
			return u, true
		}
	}
	return "", false
}

func anchorHref(doc string, policy LinkPolicy) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key != "href" {
					continue
				}
				href := strings.TrimSpace(a.Val)
				if href != "" && policy.Matches(href) && absoluteHTTP(href) {
					return href, true
				}
			}
		}
	}
}

// absoluteHTTP reports whether u is an http(s) URL with a host.
func absoluteHTTP(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func textURL(doc string, policy LinkPolicy) (string, bool) {
	for _, u := range urlRe.FindAllString(doc, -1) {
		if !policy.Matches(u) {
			continue
		}
		return strings.TrimRight(u, urlTrimCutset), true
	}
	return "", false
}
