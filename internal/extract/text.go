package extract

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// bucket splits decoded parts into HTML and plain-text documents, keeping
// their order. Other media types are ignored.
func bucket(parts []model.ContentPart) (htmlDocs, textDocs []string) {
	for _, p := range parts {
		switch p.MediaType() {
		case "text/html":
			htmlDocs = append(htmlDocs, DecodeText(p))
		case "text/plain":
			textDocs = append(textDocs, DecodeText(p))
		}
	}
	return htmlDocs, textDocs
}

// DecodeText converts a part payload to UTF-8. A declared non-UTF-8 charset is
// honoured when known; whatever cannot be decoded is dropped, never fatal.
func DecodeText(p model.ContentPart) string {
	if cs := declaredCharset(p.ContentType); cs != "" && cs != "utf-8" && cs != "us-ascii" {
		if r, err := charset.Reader(cs, bytes.NewReader(p.Data)); err == nil {
			if b, err := io.ReadAll(r); err == nil {
				return strings.ToValidUTF8(string(b), "")
			}
		}
	}
	if utf8.Valid(p.Data) {
		return string(p.Data)
	}
	return strings.ToValidUTF8(string(p.Data), "")
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}
