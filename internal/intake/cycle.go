// Package intake runs one poll tick: search the mailbox, pick the first fresh
// message carrying a confirmation link, act on it and report the next anchor.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rsm23/netflix-home-auto-confirm/internal/decoder"
	"github.com/rsm23/netflix-home-auto-confirm/internal/extract"
	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// Code is the outcome of a cycle, also used as the process exit code.
type Code int

const (
	CodeActioned     Code = 0 // a link was confirmed
	CodeNoCandidates Code = 1 // search empty, or every candidate older than the anchor
	CodeNoLink       Code = 2 // fresh candidates, none actioned
	CodeFailed       Code = 3 // cycle aborted (search, auth or configuration error)
)

func (c Code) String() string {
	switch c {
	case CodeActioned:
		return "actioned"
	case CodeNoCandidates:
		return "no-candidates"
	case CodeNoLink:
		return "no-link"
	case CodeFailed:
		return "failed"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// DefaultBatchSize is the number of candidates requested per search.
const DefaultBatchSize = 10

// Actor performs the on-page confirmation for a link.
type Actor interface {
	Confirm(ctx context.Context, url string, closeDelay time.Duration) (bool, error)
}

// Session is the state carried across cycles of one watch session.
// Only the goroutine running cycles mutates it.
type Session struct {
	Anchor   model.Anchor
	LastLink string // most recently actioned link, for open-once suppression
}

// Options are the per-invocation inputs of RunOnce.
type Options struct {
	Query    string
	OpenOnce bool
}

// Result reports what a cycle did. NextAnchor is set only when Actioned.
type Result struct {
	Code       Code
	Actioned   bool
	NextAnchor model.Anchor
	MessageID  string
	Link       string
	RecordPath string
}

// Cycle holds the collaborators of one intake tick.
type Cycle struct {
	Gateway mailbox.Gateway
	Actor   Actor
	// Recorder may be nil, in which case no result file is written.
	Recorder Recorder
	Logger   *slog.Logger

	LinkPolicy       extract.LinkPolicy
	RequesterMarkers []string
	BatchSize        int64
	CloseDelay       time.Duration
	// Label, when set and supported by the gateway, files the actioned message.
	Label string
	Debug bool

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RunOnce executes one intake tick against sess.Anchor. On success it stores
// the link in sess.LastLink; advancing sess.Anchor is left to the caller.
// The returned error is non-nil only when the search itself failed.
func (c *Cycle) RunOnce(ctx context.Context, sess *Session, opts Options) (Result, error) {
	if sess == nil {
		sess = &Session{}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("cycle", uuid.NewString())

	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	ids, err := c.Gateway.Search(ctx, opts.Query, batch)
	if err != nil {
		return Result{Code: CodeFailed}, fmt.Errorf("search mailbox: %w", err)
	}
	if len(ids) == 0 {
		logger.Info("no matching message")
		return Result{Code: CodeNoCandidates}, nil
	}
	logger.Info("candidates to inspect", "count", len(ids), "anchor", sess.Anchor.String())

	fresh := 0
	for _, id := range ids {
		msg, err := c.Gateway.Fetch(ctx, id)
		if err != nil {
			fresh++
			logger.Warn("fetch failed, candidate skipped", "id", id, "err", err)
			continue
		}
		logger.Debug("inspecting", "id", id, "internal_date", msg.InternalDate)
		if !sess.Anchor.Admits(msg.InternalDate) {
			logger.Info("older than anchor, skipped", "id", id, "internal_date", msg.InternalDate)
			continue
		}
		fresh++

		parts := decoder.Decode(ctx, msg, c.Gateway, logger)
		link, ok := extract.Link(parts, c.LinkPolicy)
		if !ok {
			if c.Debug {
				logger.Info("no link in message", "id", id, "subject", msg.Subject(), "from", msg.From())
			}
			continue
		}
		logger.Info("confirmation link found", "id", id, "link", link)

		if opts.OpenOnce && sess.LastLink == link {
			logger.Info("link already actioned, skipped", "id", id, "link", link)
			continue
		}

		if !c.confirm(ctx, logger, link) {
			continue
		}

		sess.LastLink = link
		res := Result{
			Code:      CodeActioned,
			Actioned:  true,
			MessageID: id,
			Link:      link,
		}
		res.RecordPath = c.record(logger, msg, parts)
		c.finish(ctx, logger, id)

		res.NextAnchor = model.AnchorNow(c.now())
		logger.Info("message actioned", "id", id, "next_anchor", res.NextAnchor.String())
		return res, nil
	}

	if fresh == 0 {
		logger.Info("every candidate is older than the anchor")
		return Result{Code: CodeNoCandidates}, nil
	}
	logger.Info("no actionable link in recent messages")
	return Result{Code: CodeNoLink}, nil
}

// confirm runs the actor, folding errors and panics into a failed attempt.
func (c *Cycle) confirm(ctx context.Context, logger *slog.Logger, link string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("confirmation panicked", "link", link, "panic", r)
			ok = false
		}
	}()
	ok, err := c.Actor.Confirm(ctx, link, c.CloseDelay)
	if err != nil {
		logger.Warn("confirmation failed", "link", link, "err", err)
		return false
	}
	logger.Info("confirmation result", "link", link, "success", ok)
	return ok
}

func (c *Cycle) record(logger *slog.Logger, msg *model.MailMessage, parts []model.ContentPart) string {
	if c.Recorder == nil {
		return ""
	}
	requester, _ := extract.Requester(parts, c.RequesterMarkers)
	path, err := c.Recorder.Record(model.ResultRecord{
		Subject:   msg.Subject(),
		MessageID: msg.ID,
		Requester: requester,
		ActedAt:   c.now(),
	})
	if err != nil {
		logger.Warn("could not write result record", "id", msg.ID, "err", err)
		return ""
	}
	logger.Info("result record saved", "path", path)
	return path
}

// finish marks the message read and files it, both best-effort.
func (c *Cycle) finish(ctx context.Context, logger *slog.Logger, id string) {
	if err := c.Gateway.MarkRead(ctx, id); err != nil {
		logger.Warn("could not mark message read", "id", id, "err", err)
	}
	if c.Label == "" {
		return
	}
	mv, ok := c.Gateway.(mailbox.Mover)
	if !ok {
		return
	}
	if err := mv.Move(ctx, id, c.Label); err != nil {
		logger.Warn("could not move message", "id", id, "label", c.Label, "err", err)
	}
}
