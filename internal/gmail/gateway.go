// Package gmail adapts the Gmail REST API to mailbox.Gateway.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const user = "me"

// Gateway implements mailbox.Gateway and mailbox.Mover over a Gmail service.
type Gateway struct {
	svc *gmailv1.Service

	mu     sync.Mutex
	labels map[string]string // name -> id
}

// NewGateway wraps an authenticated service.
func NewGateway(svc *gmailv1.Service) *Gateway {
	return &Gateway{svc: svc}
}

// Search lists ids matching a Gmail query, newest first as the API returns them.
func (g *Gateway) Search(ctx context.Context, query string, max int64) ([]string, error) {
	resp, err := g.svc.Users.Messages.List(user).
		Q(query).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// Fetch retrieves the message in full format.
func (g *Gateway) Fetch(ctx context.Context, id string) (*model.MailMessage, error) {
	msg, err := g.svc.Users.Messages.Get(user, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get message %s: %w", id, mailbox.ErrNotFound)
		}
		return nil, wrapErr("get message "+id, err)
	}
	return convertMessage(msg), nil
}

// FetchAttachment returns the base64url data of an attachment-stored body.
func (g *Gateway) FetchAttachment(ctx context.Context, messageID, ref string) (string, error) {
	body, err := g.svc.Users.Messages.Attachments.Get(user, messageID, ref).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("get attachment "+ref, err)
	}
	return body.Data, nil
}

// MarkRead removes the UNREAD label.
func (g *Gateway) MarkRead(ctx context.Context, id string) error {
	req := &gmailv1.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}
	if _, err := g.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return wrapErr("mark read "+id, err)
	}
	return nil
}

// Move files the message under label, creating it if needed, and archives it.
func (g *Gateway) Move(ctx context.Context, id, label string) error {
	labelID, err := g.labelID(ctx, label)
	if err != nil {
		return err
	}
	req := &gmailv1.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{"INBOX"},
	}
	if _, err := g.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return wrapErr("move message "+id, err)
	}
	return nil
}

func (g *Gateway) labelID(ctx context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.labels[name]; ok {
		return id, nil
	}
	resp, err := g.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("list labels", err)
	}
	if g.labels == nil {
		g.labels = make(map[string]string)
	}
	for _, l := range resp.Labels {
		g.labels[l.Name] = l.Id
	}
	if id, ok := g.labels[name]; ok {
		return id, nil
	}
	created, err := g.svc.Users.Labels.Create(user, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("create label "+name, err)
	}
	g.labels[name] = created.Id
	return created.Id, nil
}

func isNotFound(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == http.StatusNotFound
}

// convertMessage maps the API payload onto the provider-neutral message.
func convertMessage(msg *gmailv1.Message) *model.MailMessage {
	out := &model.MailMessage{
		ID:           msg.Id,
		InternalDate: msg.InternalDate,
		Headers:      model.Headers{},
	}
	if msg.Payload == nil {
		out.Body = model.Part{Kind: model.PartInline, ContentType: "text/plain"}
		return out
	}
	for _, h := range msg.Payload.Headers {
		out.Headers.Set(h.Name, h.Value)
	}
	out.Body = convertPart(msg.Payload)
	return out
}

func contentType(p *gmailv1.MessagePart) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, "Content-Type") && h.Value != "" {
			return h.Value
		}
	}
	return p.MimeType
}
