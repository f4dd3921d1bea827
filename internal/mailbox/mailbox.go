// Package mailbox declares the contract every mail provider adapter satisfies.
package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// Gateway is the remote mailbox as seen by the intake cycle.
type Gateway interface {
	// Search returns up to max message ids matching query, in provider order.
	Search(ctx context.Context, query string, max int64) ([]string, error)

	// Fetch retrieves the full message with its body tree.
	Fetch(ctx context.Context, id string) (*model.MailMessage, error)

	// FetchAttachment returns the base64url payload of an externally stored part.
	FetchAttachment(ctx context.Context, messageID, ref string) (string, error)

	// MarkRead clears the unread state of a message.
	MarkRead(ctx context.Context, id string) error
}

// Mover is implemented by gateways that can file a message under a label or folder.
type Mover interface {
	Move(ctx context.Context, id, label string) error
}

// ErrNotFound is returned when a message id no longer resolves.
var ErrNotFound = errors.New("message not found")

// AuthError indicates the provider rejected our credentials.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
