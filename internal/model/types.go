package model

import (
	"fmt"
	"strings"
	"time"
)

// PartKind tags a node of a MIME body tree.
type PartKind int

const (
	PartInline    PartKind = iota // leaf carrying transport-encoded data
	PartExternal                  // leaf whose data must be fetched by reference
	PartMultipart                 // container; payload lives in Children
)

// Part is one node of a message body tree as delivered by the mailbox.
// Data is base64url encoded, the way Gmail transfers bodies.
type Part struct {
	Kind        PartKind
	ContentType string // full Content-Type value, may carry a charset param
	Data        string
	Ref         string // attachment reference for PartExternal
	Children    []Part
}

// Headers maps lowercased header names to values.
type Headers map[string]string

// Get looks up a header case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Set stores a header under its lowercased name. The first value wins.
func (h Headers) Set(name, value string) {
	k := strings.ToLower(name)
	if _, ok := h[k]; ok {
		return
	}
	h[k] = value
}

// MailMessage is a fully fetched message. It is not mutated after fetch.
type MailMessage struct {
	ID           string
	InternalDate int64 // receipt time, epoch milliseconds
	Headers      Headers
	Body         Part
}

// Subject returns the Subject header or a placeholder.
func (m *MailMessage) Subject() string {
	if s := m.Headers.Get("subject"); s != "" {
		return s
	}
	return "(no subject)"
}

// From returns the From header or a placeholder.
func (m *MailMessage) From() string {
	if s := m.Headers.Get("from"); s != "" {
		return s
	}
	return "(unknown)"
}

// ContentPart is a decoded leaf of a body tree.
type ContentPart struct {
	ContentType string
	Data        []byte
}

// MediaType returns the lowercased media type without parameters.
func (p ContentPart) MediaType() string {
	mt, _, _ := strings.Cut(p.ContentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Anchor is the receipt-time boundary below which messages count as seen.
// The zero value is unset and admits everything.
type Anchor struct {
	Millis int64
	Set    bool
}

// AnchorAt returns a set anchor at ms.
func AnchorAt(ms int64) Anchor {
	return Anchor{Millis: ms, Set: true}
}

// AnchorNow returns a set anchor at t.
func AnchorNow(t time.Time) Anchor {
	return AnchorAt(t.UnixMilli())
}

// Admits reports whether a message received at ts is newer than the anchor.
func (a Anchor) Admits(ts int64) bool {
	return !a.Set || ts > a.Millis
}

// Advance returns the later of a and next. An unset next leaves a unchanged.
func (a Anchor) Advance(next Anchor) Anchor {
	if !next.Set {
		return a
	}
	if !a.Set || next.Millis > a.Millis {
		return next
	}
	return a
}

func (a Anchor) String() string {
	if !a.Set {
		return "unset"
	}
	return fmt.Sprintf("%d", a.Millis)
}

// ResultRecord is persisted once per successful action.
type ResultRecord struct {
	Subject   string
	MessageID string
	Requester string // empty when not found
	ActedAt   time.Time
}

// Settings are the operator-tunable values the control surface can change.
type Settings struct {
	Interval   time.Duration
	CloseDelay time.Duration
	OutputDir  string
	OpenOnce   bool
	AutoClick  bool
}

// Validate rejects settings that must not reach a running scheduler.
func (s Settings) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.Interval)
	}
	if s.CloseDelay < 0 {
		return fmt.Errorf("close delay must not be negative, got %s", s.CloseDelay)
	}
	return nil
}
