package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/inbox-triage/internal/model"
)

// Record is the on-disk shape of one approval request. Draft fields are
// flattened and optional values are written as null.
type Record struct {
	RequestID           string    `json:"request_id"`
	DraftTo             []string  `json:"draft_to"`
	DraftSubject        string    `json:"draft_subject"`
	DraftBody           string    `json:"draft_body"`
	DraftBodyHTML       *string   `json:"draft_body_html"`
	FinalRecipientEmail string    `json:"final_recipient_email"`
	FinalRecipientName  *string   `json:"final_recipient_name"`
	ApproverEmail       string    `json:"approver_email"`
	Status              string    `json:"status"`
	CreatedAt           Timestamp `json:"created_at"`
	ApprovedAt          Timestamp `json:"approved_at"`
	RejectedAt          Timestamp `json:"rejected_at"`
	SentAt              Timestamp `json:"sent_at"`
	ApprovalMessageID   *string   `json:"approval_message_id"`
	Notes               *string   `json:"notes"`
}

// RecordFrom flattens a request into its persisted form.
func RecordFrom(r *model.ApprovalRequest) Record {
	return Record{
		RequestID:           r.ID,
		DraftTo:             r.Draft.Recipients(),
		DraftSubject:        r.Draft.Subject,
		DraftBody:           r.Draft.BodyText,
		DraftBodyHTML:       nullable(r.Draft.BodyHTML),
		FinalRecipientEmail: r.FinalRecipient.Email,
		FinalRecipientName:  nullable(r.FinalRecipient.Name),
		ApproverEmail:       r.Approver,
		Status:              string(r.Status),
		CreatedAt:           Timestamp{Time: &r.CreatedAt},
		ApprovedAt:          Timestamp{Time: r.ApprovedAt},
		RejectedAt:          Timestamp{Time: r.RejectedAt},
		SentAt:              Timestamp{Time: r.SentAt},
		ApprovalMessageID:   nullable(r.ApprovalMessageID),
		Notes:               nullable(r.Notes),
	}
}

// Request rebuilds the domain value. Unknown statuses are rejected so a
// hand-edited file cannot smuggle in an unreachable state.
func (rec Record) Request() (*model.ApprovalRequest, error) {
	status := model.ApprovalStatus(rec.Status)
	switch status {
	case model.ApprovalPending, model.ApprovalApproved,
		model.ApprovalRejected, model.ApprovalExpired:
	default:
		return nil, fmt.Errorf("request %s: unknown status %q", rec.RequestID, rec.Status)
	}

	to := make([]model.Address, 0, len(rec.DraftTo))
	for _, addr := range rec.DraftTo {
		to = append(to, model.Address{Email: addr})
	}

	req := &model.ApprovalRequest{
		ID: rec.RequestID,
		Draft: model.Draft{
			To:       to,
			Subject:  rec.DraftSubject,
			BodyText: rec.DraftBody,
			BodyHTML: deref(rec.DraftBodyHTML),
		},
		FinalRecipient: model.Address{
			Email: rec.FinalRecipientEmail,
			Name:  deref(rec.FinalRecipientName),
		},
		Approver:          rec.ApproverEmail,
		Status:            status,
		ApprovedAt:        rec.ApprovedAt.Time,
		RejectedAt:        rec.RejectedAt.Time,
		SentAt:            rec.SentAt.Time,
		ApprovalMessageID: deref(rec.ApprovalMessageID),
		Notes:             deref(rec.Notes),
	}
	if rec.CreatedAt.Time != nil {
		req.CreatedAt = *rec.CreatedAt.Time
	}

	return req, nil
}

// timestampLayouts are tried in order when decoding. The second form is
// an ISO-8601 timestamp without zone, which is read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Timestamp is a nullable ISO-8601 instant.
type Timestamp struct {
	Time *time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = nil
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = &parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q is not ISO-8601", s)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
