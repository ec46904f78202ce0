package model

import "time"

// Disposition records what the pipeline did with an inbound email.
type Disposition string

const (
	DispositionAnalyzed  Disposition = "analyzed"
	DispositionDrafted   Disposition = "drafted"
	DispositionSent      Disposition = "sent"
	DispositionSubmitted Disposition = "submitted"
	DispositionFailed    Disposition = "failed"
)

// TriageRecord is the stored outcome of processing one inbound email.
type TriageRecord struct {
	ID        string `json:"id" db:"id"`
	MessageID string `json:"message_id" db:"message_id"`
	UID       uint32 `json:"uid" db:"uid"`
	Sender    string `json:"sender" db:"sender"`
	Subject   string `json:"subject" db:"subject"`

	Category       Category  `json:"category" db:"category"`
	Priority       Priority  `json:"priority" db:"priority"`
	Sentiment      Sentiment `json:"sentiment" db:"sentiment"`
	Summary        string    `json:"summary" db:"summary"`
	ActionRequired bool      `json:"action_required" db:"action_required"`
	Confidence     float64   `json:"confidence" db:"confidence"`

	ReplySubject string `json:"reply_subject" db:"reply_subject"`
	ReplyBody    string `json:"reply_body" db:"reply_body"`

	Disposition Disposition `json:"disposition" db:"disposition"`

	// ApprovalID links to the approval request when the reply was routed
	// through the approver.
	ApprovalID string `json:"approval_id" db:"approval_id"`

	Error     string    `json:"error" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DecisionChannel names where an approval event originated.
type DecisionChannel string

const (
	ChannelMail  DecisionChannel = "mail"
	ChannelStore DecisionChannel = "store"
	ChannelHTTP  DecisionChannel = "http"
	ChannelTUI   DecisionChannel = "tui"
	ChannelCLI   DecisionChannel = "cli"
)

// DecisionOutcome is the kind of approval event recorded in the audit log.
type DecisionOutcome string

const (
	OutcomeSubmitted DecisionOutcome = "submitted"
	OutcomeApproved  DecisionOutcome = "approved"
	OutcomeRejected  DecisionOutcome = "rejected"
	OutcomeSent      DecisionOutcome = "sent"
)

// DecisionEvent is one entry of the approval audit trail.
type DecisionEvent struct {
	ID        string          `json:"id" db:"id"`
	RequestID string          `json:"request_id" db:"request_id"`
	Outcome   DecisionOutcome `json:"outcome" db:"outcome"`
	Channel   DecisionChannel `json:"channel" db:"channel"`
	Notes     string          `json:"notes" db:"notes"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
