// Package imapbox adapts a plain IMAP mailbox to mailbox.Gateway.
package imapbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const provider = "imap"

// Config describes the IMAP account.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool   // implicit TLS; false means STARTTLS
	Mailbox  string // defaults to INBOX
}

// Gateway implements mailbox.Gateway and mailbox.Mover. Every call opens its
// own session, so a dropped connection never outlives one operation.
type Gateway struct {
	cfg Config
	now func() time.Time
}

// NewGateway validates cfg and returns a gateway.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if cfg.Username == "" {
		return nil, errors.New("imap username is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("imap port out of range: %d", cfg.Port)
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Gateway{cfg: cfg, now: time.Now}, nil
}

// connect dials, logs in and selects the configured mailbox. The returned
// release func logs out and detaches the context watcher.
func (g *Gateway) connect(ctx context.Context, readOnly bool) (*imapclient.Client, func(), error) {
	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))

	var (
		client *imapclient.Client
		err    error
	)
	if g.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	// go-imap has no context support; closing the socket unblocks any command.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	release := func() {
		stop()
		_ = client.Logout().Wait()
	}

	if err := client.Login(g.cfg.Username, g.cfg.Password).Wait(); err != nil {
		release()
		return nil, nil, &mailbox.AuthError{
			Provider: provider,
			Message:  fmt.Sprintf("authentication failed for %s", g.cfg.Username),
			Err:      err,
		}
	}
	if _, err := client.Select(g.cfg.Mailbox, &imap.SelectOptions{ReadOnly: readOnly}).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("selecting %s: %w", g.cfg.Mailbox, err)
	}
	return client, release, nil
}

// Search translates a Gmail-style query and returns up to max UIDs, newest first.
func (g *Gateway) Search(ctx context.Context, query string, max int64) ([]string, error) {
	criteria, err := ParseQuery(query, g.now())
	if err != nil {
		return nil, err
	}
	client, release, err := g.connect(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return newestFirst(data.AllUIDs(), max), nil
}

func newestFirst(uids []imap.UID, max int64) []string {
	slices.Sort(uids)
	if max > 0 && int64(len(uids)) > max {
		uids = uids[int64(len(uids))-max:]
	}
	ids := make([]string, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		ids = append(ids, strconv.FormatUint(uint64(uids[i]), 10))
	}
	return ids
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap uid %q", id)
	}
	return imap.UID(n), nil
}

// Fetch downloads the raw message without setting \Seen and parses its tree.
func (g *Gateway) Fetch(ctx context.Context, id string) (*model.MailMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	client, release, err := g.connect(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d: %w", uid, mailbox.ErrNotFound)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}
	out, err := ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	out.ID = id
	out.InternalDate = buf.InternalDate.UnixMilli()
	return out, nil
}

// FetchAttachment is never needed: IMAP bodies are always fetched inline.
func (g *Gateway) FetchAttachment(_ context.Context, messageID, ref string) (string, error) {
	return "", fmt.Errorf("imap message %s: no external part %q", messageID, ref)
}

// MarkRead adds the \Seen flag.
func (g *Gateway) MarkRead(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	client, release, err := g.connect(ctx, false)
	if err != nil {
		return err
	}
	defer release()

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d seen: %w", uid, err)
	}
	return nil
}

// Move moves the message to the named folder.
func (g *Gateway) Move(ctx context.Context, id, folder string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	client, release, err := g.connect(ctx, false)
	if err != nil {
		return err
	}
	defer release()

	if _, err := client.Move(imap.UIDSetNum(uid), folder).Wait(); err != nil {
		return fmt.Errorf("moving UID %d to %s: %w", uid, folder, err)
	}
	return nil
}
