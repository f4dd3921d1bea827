package gmail

import (
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// convertPart recursively maps a Gmail MIME part tree. Sub-parts make a
// multipart node; a body carrying an attachment id and no inline data is an
// external reference; anything else is inline base64url data.
func convertPart(part *gmailv1.MessagePart) model.Part {
	ct := contentType(part)

	if len(part.Parts) > 0 || strings.HasPrefix(strings.ToLower(part.MimeType), "multipart/") {
		node := model.Part{Kind: model.PartMultipart, ContentType: ct}
		for _, sub := range part.Parts {
			if sub == nil {
				continue
			}
			node.Children = append(node.Children, convertPart(sub))
		}
		return node
	}

	if part.Body == nil {
		return model.Part{Kind: model.PartInline, ContentType: ct}
	}
	if part.Body.Data == "" && part.Body.AttachmentId != "" {
		return model.Part{Kind: model.PartExternal, ContentType: ct, Ref: part.Body.AttachmentId}
	}
	return model.Part{Kind: model.PartInline, ContentType: ct, Data: part.Body.Data}
}
