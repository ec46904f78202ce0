package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/model"
)

// Signer transforms a fully composed message before submission.
type Signer interface {
	Sign(raw []byte) ([]byte, error)
}

// smtpClient is the part of *smtp.Client a send uses.
type smtpClient interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

// SMTPSender submits drafts through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	signer Signer
	log    zerolog.Logger
	now    func() time.Time
	dial   func() (smtpClient, error)
}

// NewSMTPSender creates a sender for the given relay. signer may be nil.
func NewSMTPSender(cfg SMTPConfig, signer Signer, log zerolog.Logger) *SMTPSender {
	s := &SMTPSender{
		cfg:    cfg,
		signer: signer,
		log:    log,
		now:    time.Now,
	}
	s.dial = func() (smtpClient, error) { return s.dialRelay() }
	return s
}

// Send composes d, signs it when a signer is configured, and submits it.
// It returns the Message-ID written into the message. Once the relay has
// accepted the data the message counts as delivered: a failing QUIT is
// logged, not returned.
func (s *SMTPSender) Send(_ context.Context, d model.Draft) (string, error) {
	raw, messageID, err := composeMessage(s.cfg.From, d, s.now())
	if err != nil {
		return "", err
	}

	if s.signer != nil {
		raw, err = s.signer.Sign(raw)
		if err != nil {
			return "", fmt.Errorf("signing message: %w", err)
		}
	}

	client, err := s.dial()
	if err != nil {
		return "", err
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	if err := client.Auth(auth); err != nil {
		return "", &AuthError{
			Protocol: "smtp",
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", s.cfg.Username, err,
			),
		}
	}

	if err := client.SendMail(
		s.cfg.From.Email, d.Recipients(), bytes.NewReader(raw),
	); err != nil {
		return "", fmt.Errorf("sending %q: %w", d.Subject, err)
	}

	if err := client.Quit(); err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("SMTP QUIT failed after delivery")
	}

	return messageID, nil
}

// Ping verifies the relay accepts the credentials without sending.
func (s *SMTPSender) Ping(_ context.Context) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(
		sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password),
	); err != nil {
		return &AuthError{Protocol: "smtp", Message: err.Error()}
	}
	return client.Quit()
}

// dialRelay connects with implicit TLS or STARTTLS depending on the config.
func (s *SMTPSender) dialRelay() (*smtp.Client, error) {
	addr := s.cfg.Host + ":" + s.cfg.Port
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	if s.cfg.TLS {
		client, err := smtp.DialTLS(addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
		return client, nil
	}

	client, err := smtp.DialStartTLS(addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("STARTTLS dial to %s: %w", addr, err)
	}
	return client, nil
}

// LogSender logs drafts instead of delivering them. It backs --dry-run.
type LogSender struct {
	log zerolog.Logger
	seq atomic.Int64
}

// NewLogSender returns a sender that only writes to log.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the draft and returns a synthetic Message-ID.
func (s *LogSender) Send(_ context.Context, d model.Draft) (string, error) {
	id := fmt.Sprintf("dry-run-%d@localhost", s.seq.Add(1))
	s.log.Info().
		Strs("to", d.Recipients()).
		Str("subject", d.Subject).
		Int("body_len", len(d.BodyText)).
		Str("message_id", id).
		Msg("dry run: message not sent")
	return id, nil
}
