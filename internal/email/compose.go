package email

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/inbox-triage/internal/model"
)

// composeMessage renders d as an RFC 5322 message from the given sender.
// The body is multipart/alternative when an HTML body is present. It
// returns the raw bytes and the generated Message-ID.
func composeMessage(
	from model.Address, d model.Draft, now time.Time,
) ([]byte, string, error) {
	if len(d.To) == 0 {
		return nil, "", fmt.Errorf("draft %q has no recipients", d.Subject)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(d.Subject)
	h.SetAddressList("From", []*mail.Address{toMailAddress(from)})

	to := make([]*mail.Address, 0, len(d.To))
	for _, a := range d.To {
		to = append(to, toMailAddress(a))
	}
	h.SetAddressList("To", to)

	if d.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{d.InReplyTo})
		h.SetMsgIDList("References", []string{d.InReplyTo})
	}

	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generating Message-ID: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("reading Message-ID: %w", err)
	}

	var buf bytes.Buffer

	if d.BodyHTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, "", fmt.Errorf("creating message writer: %w", err)
		}
		if _, err := io.WriteString(w, d.BodyText); err != nil {
			return nil, "", fmt.Errorf("writing text body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("closing message writer: %w", err)
		}
		return buf.Bytes(), messageID, nil
	}

	mw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("creating multipart writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", d.BodyText},
		{"text/html", d.BodyHTML},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := mw.CreatePart(ph)
		if err != nil {
			return nil, "", fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return nil, "", fmt.Errorf("writing %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, "", fmt.Errorf("closing %s part: %w", p.contentType, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return buf.Bytes(), messageID, nil
}

func toMailAddress(a model.Address) *mail.Address {
	return &mail.Address{Name: a.Name, Address: a.Email}
}
