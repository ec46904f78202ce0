package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/inbox-triage/internal/model"
)

// AuthError indicates that the mail server rejected the credentials.
type AuthError struct {
	Protocol string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Protocol, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IMAPConfig holds the IMAP server settings.
type IMAPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// SMTPConfig holds the SMTP server settings for outgoing mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool

	// From is the sender written into the From header.
	From model.Address
}

// Session is one authenticated IMAP connection with INBOX selected.
// Close must be called on every exit path.
type Session interface {
	// Unread returns up to limit of the newest unread messages, oldest
	// first. A limit of zero or less returns all of them.
	Unread(ctx context.Context, limit int) ([]model.InboundMessage, error)

	// MarkRead sets \Seen on the message with the given UID.
	MarkRead(ctx context.Context, uid uint32) error

	// Close logs out and releases the connection.
	Close() error
}
