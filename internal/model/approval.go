package model

import "time"

// ApprovalStatus is the life-cycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"

	// ApprovalExpired is reserved for a future TTL; nothing produces it yet.
	ApprovalExpired ApprovalStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalPending
}

// ApprovalRequest tracks one draft awaiting an approver's decision.
type ApprovalRequest struct {
	// ID is the short uppercase token quoted in the approval subject.
	ID string `json:"request_id"`

	// Draft is the message delivered to FinalRecipient once approved.
	Draft Draft `json:"draft"`

	// FinalRecipient is the real destination of the draft. It is never
	// the approver.
	FinalRecipient Address `json:"final_recipient"`

	// Approver is the mailbox whose decision gates delivery.
	Approver string `json:"approver_email"`

	Status ApprovalStatus `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`

	// ApprovalMessageID is the Message-ID of the notification mailed to
	// the approver.
	ApprovalMessageID string `json:"approval_message_id,omitempty"`

	// Notes holds the rationale captured from the deciding channel.
	Notes string `json:"notes,omitempty"`
}

// Clone returns a deep copy so callers can mutate without touching shared
// state.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Draft.To = append([]Address(nil), r.Draft.To...)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.SentAt = cloneTime(r.SentAt)
	return &c
}

// Approve moves the request to approved at t.
func (r *ApprovalRequest) Approve(t time.Time, notes string) {
	r.Status = ApprovalApproved
	r.ApprovedAt = &t
	r.Notes = notes
}

// Reject moves the request to rejected at t.
func (r *ApprovalRequest) Reject(t time.Time, notes string) {
	r.Status = ApprovalRejected
	r.RejectedAt = &t
	r.Notes = notes
}

// MarkSent records delivery to the final recipient.
func (r *ApprovalRequest) MarkSent(t time.Time) {
	r.SentAt = &t
}

// FinalDraft builds the message delivered to the final recipient.
func (r *ApprovalRequest) FinalDraft() Draft {
	return Draft{
		To:       []Address{r.FinalRecipient},
		Subject:  r.Draft.Subject,
		BodyText: r.Draft.BodyText,
		BodyHTML: r.Draft.BodyHTML,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
