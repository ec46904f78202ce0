package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
)

var (
	// ErrNotFound is returned for an id that is not in the store.
	ErrNotFound = errors.New("approval request not found")

	// ErrAlreadyProcessed is returned when deciding a request that is no
	// longer pending, or that another caller is deciding right now.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrSendFailed wraps a delivery failure. The request stays pending.
	ErrSendFailed = errors.New("delivering approved email failed")

	// ErrNotRecorded is returned when the final draft went out but the
	// approval could not be written. Retrying would send again.
	ErrNotRecorded = errors.New("approved email sent but decision not recorded")
)

// DefaultRejectReason is stored when an operator rejects without a reason.
const DefaultRejectReason = "No reason provided"

// Stats summarises the store by status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Operator records decisions made by a person at a terminal or browser. It
// works on the store only; a running Workflow picks the decisions up on its
// next tick.
//
// Approve delivers the final draft itself before marking the record
// approved with sent_at, which is the shape the Workflow absorbs without
// sending again.
type Operator struct {
	store  *store.ApprovalFile
	sender Sender
	audit  AuditLog
	log    zerolog.Logger
	now    func() time.Time
}

// NewOperator creates an operator over st. audit may be nil.
func NewOperator(st *store.ApprovalFile, sender Sender, audit AuditLog, log zerolog.Logger) *Operator {
	return &Operator{
		store:  st,
		sender: sender,
		audit:  audit,
		log:    log,
		now:    time.Now,
	}
}

// List returns the pending requests, oldest first, and counts by status.
func (o *Operator) List(_ context.Context) ([]*model.ApprovalRequest, Stats, error) {
	all, err := o.store.Load()
	if err != nil {
		return nil, Stats{}, err
	}

	var (
		pending []*model.ApprovalRequest
		stats   = Stats{Total: len(all)}
	)
	for _, r := range all {
		switch r.Status {
		case model.ApprovalPending:
			stats.Pending++
			pending = append(pending, r)
		case model.ApprovalApproved:
			stats.Approved++
		case model.ApprovalRejected:
			stats.Rejected++
		}
	}
	return pending, stats, nil
}

// Get returns a request by id.
func (o *Operator) Get(_ context.Context, id string) (*model.ApprovalRequest, error) {
	r, err := o.store.Get(normalizeID(id))
	if errors.Is(err, store.ErrRequestNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Approve delivers the final draft and records the approval. The request
// is claimed in the store for the whole send, so concurrent approvals of
// the same id deliver once.
func (o *Operator) Approve(
	ctx context.Context, id string, channel model.DecisionChannel,
) (*model.ApprovalRequest, error) {
	req, err := o.claim(id)
	if err != nil {
		return nil, err
	}
	defer o.store.Release(req.ID)

	logger := o.log.With().
		Str("request_id", req.ID).
		Str("subject", req.Draft.Subject).
		Str("recipient", req.FinalRecipient.Email).
		Str("channel", string(channel)).
		Logger()

	if _, err := o.sender.Send(ctx, req.FinalDraft()); err != nil {
		sendFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: request %s to %s: %w",
			ErrSendFailed, req.ID, req.FinalRecipient.Email, err)
	}
	sentTotal.Inc()

	notes := approvedNotes(channel)
	updated, err := o.store.Update(req.ID, func(r *model.ApprovalRequest) error {
		if r.Status.IsTerminal() {
			return ErrAlreadyProcessed
		}
		now := o.now()
		r.Approve(now, notes)
		r.MarkSent(now)
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("final draft sent but approval not recorded")
		return nil, fmt.Errorf("%w: request %s: %w", ErrNotRecorded, req.ID, err)
	}

	decisionsTotal.WithLabelValues(string(channel), string(model.OutcomeApproved)).Inc()
	o.record(ctx, updated.ID, model.OutcomeApproved, channel, notes)
	o.record(ctx, updated.ID, model.OutcomeSent, channel, "")
	logger.Info().Msg("approved and sent")

	return updated, nil
}

// Reject records a rejection. An empty reason is replaced by
// DefaultRejectReason.
func (o *Operator) Reject(
	ctx context.Context, id, reason string, channel model.DecisionChannel,
) (*model.ApprovalRequest, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectReason
	}

	req, err := o.claim(id)
	if err != nil {
		return nil, err
	}
	defer o.store.Release(req.ID)

	updated, err := o.store.Update(req.ID, func(r *model.ApprovalRequest) error {
		if r.Status.IsTerminal() {
			return ErrAlreadyProcessed
		}
		r.Reject(o.now(), reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	decisionsTotal.WithLabelValues(string(channel), string(model.OutcomeRejected)).Inc()
	o.record(ctx, updated.ID, model.OutcomeRejected, channel, reason)
	o.log.Info().
		Str("request_id", updated.ID).
		Str("subject", updated.Draft.Subject).
		Str("channel", string(channel)).
		Str("reason", reason).
		Msg("rejected")

	return updated, nil
}

// claim takes the request for this decision, mapping store errors to the
// operator's.
func (o *Operator) claim(id string) (*model.ApprovalRequest, error) {
	req, err := o.store.Claim(normalizeID(id))
	switch {
	case errors.Is(err, store.ErrRequestNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case errors.Is(err, store.ErrNotPending), errors.Is(err, store.ErrClaimed):
		return nil, fmt.Errorf("%w: %v", ErrAlreadyProcessed, err)
	case err != nil:
		return nil, err
	}
	return req, nil
}

func (o *Operator) record(
	ctx context.Context,
	id string,
	outcome model.DecisionOutcome,
	channel model.DecisionChannel,
	notes string,
) {
	if o.audit == nil {
		return
	}
	err := o.audit.AppendDecisionEvent(ctx, model.DecisionEvent{
		RequestID: id,
		Outcome:   outcome,
		Channel:   channel,
		Notes:     notes,
		CreatedAt: o.now(),
	})
	if err != nil {
		o.log.Warn().Err(err).Str("request_id", id).Msg("recording decision event")
	}
}

func approvedNotes(channel model.DecisionChannel) string {
	switch channel {
	case model.ChannelTUI:
		return "Approved via terminal UI"
	case model.ChannelCLI:
		return "Approved via CLI"
	default:
		return DefaultApprovedNotes
	}
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
