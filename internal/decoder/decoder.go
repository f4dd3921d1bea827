// Package decoder flattens a message body tree into decoded content parts.
package decoder

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// AttachmentFetcher resolves externally stored parts.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, messageID, ref string) (string, error)
}

// Decode walks msg.Body in pre-order and returns one ContentPart per leaf that
// carries data. Leaves stored by reference are fetched through f; a failed
// fetch or an undecodable payload drops that leaf only.
func Decode(ctx context.Context, msg *model.MailMessage, f AttachmentFetcher, logger *slog.Logger) []model.ContentPart {
	if msg == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := walker{ctx: ctx, msgID: msg.ID, fetcher: f, logger: logger}
	d.walk(&msg.Body)
	return d.out
}

type walker struct {
	ctx     context.Context
	msgID   string
	fetcher AttachmentFetcher
	logger  *slog.Logger
	out     []model.ContentPart
}

func (w *walker) walk(p *model.Part) {
	switch p.Kind {
	case model.PartMultipart:
		for i := range p.Children {
			w.walk(&p.Children[i])
		}
	case model.PartInline:
		if p.Data == "" {
			return
		}
		w.emit(p.ContentType, p.Data)
	case model.PartExternal:
		if p.Ref == "" || w.fetcher == nil {
			return
		}
		data, err := w.fetcher.FetchAttachment(w.ctx, w.msgID, p.Ref)
		if err != nil {
			w.logger.Debug("attachment fetch failed, part skipped", "id", w.msgID, "ref", p.Ref, "err", err)
			return
		}
		if data == "" {
			return
		}
		w.emit(p.ContentType, data)
	}
}

func (w *walker) emit(contentType, encoded string) {
	b, ok := DecodeBase64URL(encoded)
	if !ok {
		w.logger.Debug("undecodable part skipped", "id", w.msgID, "content_type", contentType)
		return
	}
	w.out = append(w.out, model.ContentPart{ContentType: contentType, Data: b})
}

// DecodeBase64URL decodes Gmail-style base64url, padded or not.
func DecodeBase64URL(data string) ([]byte, bool) {
	data = strings.TrimSpace(data)
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return nil, false
		}
	}
	return b, true
}

// EncodeBase64URL is the inverse used by adapters that receive raw bytes.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
