// Package approval gates outgoing drafts behind a human approver. A draft is
// mailed to the approver, kept pending in memory and in a JSON store, and
// delivered to its final recipient only after an approving reply or an
// operator decision recorded in the store.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/email"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
)

// DefaultUnreadLimit caps how many unread messages one tick inspects.
const DefaultUnreadLimit = 20

// Default notes recorded when a decision absorbed from the store carries
// none.
const (
	DefaultApprovedNotes = "Approved via web UI"
	DefaultRejectedNotes = "Rejected via web UI"
)

// Sender delivers a draft and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, d model.Draft) (string, error)
}

// Mailbox opens an IMAP session on the approver's inbox.
type Mailbox interface {
	Open(ctx context.Context) (email.Session, error)
}

// AuditLog records decision events. It is optional.
type AuditLog interface {
	AppendDecisionEvent(ctx context.Context, ev model.DecisionEvent) error
}

// Options configures a Workflow.
type Options struct {
	Sender   Sender
	Mailbox  Mailbox
	Store    *store.ApprovalFile
	Approver string

	// UnreadLimit caps the unread messages scanned per tick. Zero means
	// DefaultUnreadLimit.
	UnreadLimit int

	Audit  AuditLog
	Logger zerolog.Logger
	Now    func() time.Time
}

// Workflow is the approval state machine. Submit and CheckDecisions are
// serialized; accessors may be called from other goroutines.
type Workflow struct {
	sender      Sender
	mailbox     Mailbox
	store       *store.ApprovalFile
	approver    model.Address
	unreadLimit int
	audit       AuditLog
	log         zerolog.Logger
	now         func() time.Time

	// tick serializes Submit and CheckDecisions.
	tick sync.Mutex

	mu         sync.Mutex
	pending    map[string]*model.ApprovalRequest
	onApproved []Listener
	onRejected []Listener
	onSent     []Listener
}

// New builds a workflow and rehydrates the pending set from the store.
func New(opts Options) (*Workflow, error) {
	if opts.Sender == nil {
		return nil, errors.New("approval workflow requires a sender")
	}
	if opts.Store == nil {
		return nil, errors.New("approval workflow requires a store")
	}
	if strings.TrimSpace(opts.Approver) == "" {
		return nil, errors.New("approval workflow requires an approver address")
	}

	w := &Workflow{
		sender:      opts.Sender,
		mailbox:     opts.Mailbox,
		store:       opts.Store,
		approver:    model.Address{Email: strings.TrimSpace(opts.Approver)},
		unreadLimit: opts.UnreadLimit,
		audit:       opts.Audit,
		log:         opts.Logger,
		now:         opts.Now,
		pending:     make(map[string]*model.ApprovalRequest),
	}
	if w.unreadLimit <= 0 {
		w.unreadLimit = DefaultUnreadLimit
	}
	if w.now == nil {
		w.now = time.Now
	}

	reqs, err := w.store.Load()
	if err != nil {
		// Upsert refuses to overwrite an unreadable file, so nothing in it
		// is lost by starting empty.
		w.log.Warn().Err(err).Str("store", w.store.Path()).
			Msg("approval store unreadable, starting with no pending requests")
	}
	for _, r := range reqs {
		if r.Status == model.ApprovalPending {
			w.pending[r.ID] = r
		}
	}
	pendingGauge.Set(float64(len(w.pending)))

	w.log.Info().
		Str("approver", w.approver.Email).
		Int("pending", len(w.pending)).
		Str("store", w.store.Path()).
		Msg("approval workflow initialized")

	return w, nil
}

// Pending returns copies of the pending requests, oldest first.
func (w *Workflow) Pending() []*model.ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*model.ApprovalRequest, 0, len(w.pending))
	for _, r := range w.pending {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PendingCount returns the size of the pending set.
func (w *Workflow) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Submit mails the draft to the approver and records a pending request.
// Nothing is stored when the notification cannot be sent.
func (w *Workflow) Submit(
	ctx context.Context, d model.Draft, recipient model.Address,
) (*model.ApprovalRequest, error) {
	recipient.Email = strings.TrimSpace(recipient.Email)
	if recipient.Email == "" {
		return nil, errors.New("final recipient address is required")
	}
	if w.approver.SameMailbox(recipient.Email) {
		return nil, fmt.Errorf("final recipient %s is the approver", recipient.Email)
	}
	if len(d.To) == 0 {
		d.To = []model.Address{recipient}
	}

	w.tick.Lock()
	defer w.tick.Unlock()

	now := w.now()
	req := &model.ApprovalRequest{
		ID:             RequestID(d.Subject, d.BodyText, now),
		Draft:          d,
		FinalRecipient: recipient,
		Approver:       w.approver.Email,
		Status:         model.ApprovalPending,
		CreatedAt:      now,
	}

	w.mu.Lock()
	_, clash := w.pending[req.ID]
	w.mu.Unlock()
	if clash {
		return nil, fmt.Errorf("request id %s is already pending", req.ID)
	}

	msgID, err := w.sender.Send(ctx, notificationDraft(req))
	if err != nil {
		return nil, fmt.Errorf("sending approval request for %q: %w", d.Subject, err)
	}
	req.ApprovalMessageID = msgID

	w.mu.Lock()
	w.pending[req.ID] = req
	pendingGauge.Set(float64(len(w.pending)))
	w.mu.Unlock()
	submittedTotal.Inc()

	logger := w.log.With().
		Str("request_id", req.ID).
		Str("subject", d.Subject).
		Str("recipient", recipient.Email).
		Logger()

	if err := w.store.Upsert(req); err != nil {
		logger.Error().Err(err).Msg("approval request sent but not persisted")
		return req.Clone(), fmt.Errorf("persisting request %s: %w", req.ID, err)
	}

	w.record(ctx, req.ID, model.OutcomeSubmitted, model.ChannelMail, "")
	logger.Info().Str("approver", w.approver.Email).Msg("submitted for approval")

	return req.Clone(), nil
}

// CheckDecisions runs one tick: first it absorbs decisions already written
// to the store by another actor, then it scans the approver's unread mail.
// It returns the requests that reached a terminal state in this tick.
//
// A non-nil error means the mail pass was abandoned; the returned slice
// still holds everything decided before that point.
func (w *Workflow) CheckDecisions(ctx context.Context) ([]*model.ApprovalRequest, error) {
	w.tick.Lock()
	defer w.tick.Unlock()

	decided := w.reconcileStore(ctx)

	if w.PendingCount() == 0 {
		return decided, nil
	}
	if w.mailbox == nil {
		return decided, nil
	}

	fromMail, err := w.reconcileMail(ctx)
	decided = append(decided, fromMail...)
	return decided, err
}

// reconcileStore absorbs terminal records written by another process.
// It never sends.
func (w *Workflow) reconcileStore(ctx context.Context) []*model.ApprovalRequest {
	persisted, err := w.store.Load()
	if err != nil {
		w.log.Warn().Err(err).Msg("approval store unreadable, no stored decisions this tick")
		return nil
	}

	var decided []*model.ApprovalRequest
	for _, p := range persisted {
		var outcome model.DecisionOutcome

		w.mu.Lock()
		local, ok := w.pending[p.ID]
		if ok {
			switch {
			case p.Status == model.ApprovalRejected:
				local.Reject(timeOr(p.RejectedAt, w.now()), notesOr(p.Notes, DefaultRejectedNotes))
				outcome = model.OutcomeRejected
			case p.Status == model.ApprovalApproved && p.SentAt != nil:
				local.Approve(timeOr(p.ApprovedAt, w.now()), notesOr(p.Notes, DefaultApprovedNotes))
				local.MarkSent(*p.SentAt)
				outcome = model.OutcomeApproved
			}
			if outcome != "" {
				delete(w.pending, p.ID)
				pendingGauge.Set(float64(len(w.pending)))
				local = local.Clone()
			}
		}
		w.mu.Unlock()

		if outcome == "" {
			continue
		}

		decisionsTotal.WithLabelValues(string(model.ChannelStore), string(outcome)).Inc()
		w.record(ctx, local.ID, outcome, model.ChannelStore, local.Notes)
		w.announce(local, model.ChannelStore)

		if outcome == model.OutcomeRejected {
			w.fire("rejected", w.listeners(&w.onRejected), local)
		} else {
			w.fire("approved", w.listeners(&w.onApproved), local)
		}
		decided = append(decided, local)
	}

	return decided
}

// reconcileMail scans unread approver replies on a single IMAP session.
func (w *Workflow) reconcileMail(ctx context.Context) (decided []*model.ApprovalRequest, err error) {
	session, err := w.mailbox.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening approver mailbox: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.log.Debug().Err(cerr).Msg("closing approver mailbox")
		}
	}()

	msgs, err := session.Unread(ctx, w.unreadLimit)
	if err != nil {
		return nil, fmt.Errorf("listing unread mail: %w", err)
	}

	for _, msg := range msgs {
		if !w.approver.SameMailbox(msg.From.Email) {
			continue
		}
		if !isApprovalReply(msg.Subject) {
			continue
		}

		logger := w.log.With().Uint32("uid", msg.UID).Str("subject", msg.Subject).Logger()

		id, ok := w.resolveRequestID(msg.Subject)
		if !ok {
			logger.Debug().Msg("reply does not name a pending request")
			continue
		}

		decision := ParseDecision(msg.BodyText)
		if decision == DecisionNone {
			logger.Info().Str("request_id", id).Msg("reply has no decision keyword, leaving pending")
			continue
		}

		req, err := w.applyReply(ctx, session, msg, id, decision)
		if err != nil {
			return decided, err
		}
		if req != nil {
			decided = append(decided, req)
		}
	}

	return decided, nil
}

// resolveRequestID reads [ID: X] from the subject, or falls back to the only
// pending request. The returned id is always pending at the time of the
// call.
func (w *Workflow) resolveRequestID(subject string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id, ok := subjectRequestID(subject); ok {
		_, pending := w.pending[id]
		return id, pending
	}

	if len(w.pending) != 1 {
		return "", false
	}
	for id := range w.pending {
		return id, true
	}
	return "", false
}

// applyReply moves a pending request to its terminal state. The request is
// claimed in the store first; a request another actor already decided or is
// deciding is left alone. An approval sends the final draft; if that fails
// the request is restored to pending, the reply stays unread and the error
// is returned.
func (w *Workflow) applyReply(
	ctx context.Context,
	session email.Session,
	msg model.InboundMessage,
	id string,
	decision Decision,
) (*model.ApprovalRequest, error) {
	claimed, err := w.store.Claim(id)
	switch {
	case errors.Is(err, store.ErrNotPending), errors.Is(err, store.ErrClaimed):
		// Decided by an operator since the store pass; the next tick
		// absorbs it. The reply stays unread.
		w.log.Info().Err(err).Uint32("uid", msg.UID).Msg("reply superseded by a stored decision")
		return nil, nil
	case err != nil:
		w.log.Warn().Err(err).Str("request_id", id).Msg("request not claimable in the store, deciding from memory")
	}
	if claimed != nil {
		defer w.store.Release(id)
	}

	notes := strings.TrimSpace(msg.BodyText)
	now := w.now()

	w.mu.Lock()
	req, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return nil, nil
	}
	before := req.Clone()
	delete(w.pending, id)
	pendingGauge.Set(float64(len(w.pending)))
	if decision == DecisionApprove {
		req.Approve(now, notes)
	} else {
		req.Reject(now, notes)
	}
	w.mu.Unlock()

	logger := w.log.With().
		Str("request_id", req.ID).
		Str("subject", req.Draft.Subject).
		Str("recipient", req.FinalRecipient.Email).
		Logger()

	outcome := model.OutcomeRejected
	if decision == DecisionApprove {
		outcome = model.OutcomeApproved

		msgID, err := w.sender.Send(ctx, req.FinalDraft())
		if err != nil {
			w.mu.Lock()
			w.pending[id] = before
			pendingGauge.Set(float64(len(w.pending)))
			w.mu.Unlock()
			sendFailuresTotal.Inc()

			logger.Error().Err(err).Msg("approved draft could not be sent, request left pending")
			return nil, fmt.Errorf("sending approved request %s to %s: %w",
				req.ID, req.FinalRecipient.Email, err)
		}
		req.MarkSent(w.now())
		sentTotal.Inc()
		logger.Debug().Str("message_id", msgID).Msg("final draft delivered")
	}

	if err := w.store.Upsert(req); err != nil {
		logger.Error().Err(err).Msg("decision not persisted")
	}

	if err := session.MarkRead(ctx, msg.UID); err != nil {
		logger.Warn().Err(err).Uint32("uid", msg.UID).Msg("marking reply read")
	}

	decisionsTotal.WithLabelValues(string(model.ChannelMail), string(outcome)).Inc()
	w.record(ctx, req.ID, outcome, model.ChannelMail, req.Notes)

	snapshot := req.Clone()
	w.announce(snapshot, model.ChannelMail)

	if decision == DecisionApprove {
		w.record(ctx, req.ID, model.OutcomeSent, model.ChannelMail, "")
		w.fire("approved", w.listeners(&w.onApproved), snapshot)
		w.fire("sent", w.listeners(&w.onSent), snapshot)
	} else {
		w.fire("rejected", w.listeners(&w.onRejected), snapshot)
	}

	return snapshot, nil
}

func (w *Workflow) announce(req *model.ApprovalRequest, channel model.DecisionChannel) {
	ev := w.log.Info().
		Str("request_id", req.ID).
		Str("subject", req.Draft.Subject).
		Str("recipient", req.FinalRecipient.Email).
		Str("channel", string(channel)).
		Str("status", string(req.Status))
	if req.SentAt != nil {
		ev = ev.Time("sent_at", *req.SentAt)
	}
	ev.Msg("approval decided")
}

func (w *Workflow) record(
	ctx context.Context,
	id string,
	outcome model.DecisionOutcome,
	channel model.DecisionChannel,
	notes string,
) {
	if w.audit == nil {
		return
	}
	err := w.audit.AppendDecisionEvent(ctx, model.DecisionEvent{
		RequestID: id,
		Outcome:   outcome,
		Channel:   channel,
		Notes:     notes,
		CreatedAt: w.now(),
	})
	if err != nil {
		w.log.Warn().Err(err).Str("request_id", id).Msg("recording decision event")
	}
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}

func notesOr(notes, fallback string) string {
	if strings.TrimSpace(notes) == "" {
		return fallback
	}
	return notes
}
