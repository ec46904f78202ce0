package model

import "time"

// Draft is an outgoing message that has not been delivered yet.
type Draft struct {
	// To lists the delivery recipients.
	To []Address `json:"to"`

	// Subject is the message subject line.
	Subject string `json:"subject"`

	// BodyText is the plain-text body.
	BodyText string `json:"body_text"`

	// BodyHTML is an optional HTML alternative of BodyText.
	BodyHTML string `json:"body_html,omitempty"`

	// InReplyTo is the Message-ID this draft answers, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Recipients returns the bare email addresses of To.
func (d Draft) Recipients() []string {
	out := make([]string, 0, len(d.To))
	for _, a := range d.To {
		out = append(out, a.Email)
	}
	return out
}

// InboundMessage is a message fetched from the mailbox.
type InboundMessage struct {
	// UID is the IMAP UID within the selected folder.
	UID uint32 `json:"uid"`

	// MessageID is the RFC 5322 Message-ID without angle brackets.
	MessageID string `json:"message_id"`

	// From is the first sender of the message.
	From Address `json:"from"`

	// To lists the envelope recipients.
	To []Address `json:"to"`

	Subject  string    `json:"subject"`
	BodyText string    `json:"body_text"`
	BodyHTML string    `json:"body_html,omitempty"`
	Date     time.Time `json:"date"`

	// InReplyTo is the Message-ID of the parent message, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`

	// Seen reports whether the \Seen flag was set when fetched.
	Seen bool `json:"seen"`
}
