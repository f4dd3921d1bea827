package imapbox

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/rsm23/netflix-home-auto-confirm/internal/decoder"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// ParseMessage builds the provider-neutral body tree from a raw RFC 5322
// message. Transfer encodings are removed and text parts converted to UTF-8
// when the charset is known; unknown charsets are passed through untouched.
func ParseMessage(raw []byte) (*model.MailMessage, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	out := &model.MailMessage{Headers: model.Headers{}}
	fields := e.Header.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		out.Headers.Set(fields.Key(), v)
	}
	out.Body = buildPart(e, err)
	return out, nil
}

// buildPart converts an entity; convErr is the error message.New reported for it.
func buildPart(e *message.Entity, convErr error) model.Part {
	ct := e.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}

	if mr := e.MultipartReader(); mr != nil {
		node := model.Part{Kind: model.PartMultipart, ContentType: ct}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				break
			}
			node.Children = append(node.Children, buildPart(p, err))
		}
		return node
	}

	body, err := io.ReadAll(e.Body)
	if err != nil && len(body) == 0 {
		return model.Part{Kind: model.PartInline, ContentType: ct}
	}
	if convErr == nil {
		ct = utf8ContentType(ct)
	}
	return model.Part{Kind: model.PartInline, ContentType: ct, Data: decoder.EncodeBase64URL(body)}
}

// utf8ContentType rewrites the charset of a text type once go-message has
// already converted the body.
func utf8ContentType(ct string) string {
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil || !strings.HasPrefix(mt, "text/") {
		return ct
	}
	if _, ok := params["charset"]; !ok {
		return ct
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mt, params)
}
