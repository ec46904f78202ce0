// Package triage runs the inbox pipeline: fetch unread mail, analyse it,
// log the outcome, and draft, send, or escalate a reply.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/ai"
	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/email"
	"github.com/nhle/inbox-triage/internal/model"
)

// DefaultBatchSize is the number of unread messages handled per tick.
const DefaultBatchSize = 10

// Mailbox opens IMAP sessions.
type Mailbox interface {
	Open(ctx context.Context) (email.Session, error)
}

// Analyser classifies one inbound message.
type Analyser interface {
	Analyse(ctx context.Context, msg model.InboundMessage) (model.EmailAnalysis, error)
}

// Drafter writes a reply to an analysed message.
type Drafter interface {
	Reply(ctx context.Context, msg model.InboundMessage, analysis model.EmailAnalysis, instructions string) (model.Draft, error)
}

// Sender delivers a draft and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, d model.Draft) (string, error)
}

// Submitter routes a draft through the approver.
type Submitter interface {
	Submit(ctx context.Context, d model.Draft, recipient model.Address) (*model.ApprovalRequest, error)
}

// Records is the part of the store the agent writes to.
type Records interface {
	CreateTriageRecord(ctx context.Context, rec model.TriageRecord) error
	HasMessage(ctx context.Context, messageID string) (bool, error)
}

// Options configures an Agent.
type Options struct {
	Mailbox  Mailbox
	Analyser Analyser
	Drafter  Drafter
	Sender   Sender
	Records  Records

	// Approvals is optional. Without it external replies are only drafted.
	Approvals Submitter

	// Address is the monitored mailbox; its domain decides which
	// recipients are internal.
	Address string

	// Approver's messages are left to the approval workflow.
	Approver string

	BatchSize   int
	AutoRespond bool

	// ExternalOnly sends internal replies directly and routes only
	// external ones through approval. When false every reply is routed.
	ExternalOnly bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Stats counts what the agent has done since it was created.
type Stats struct {
	Fetched   int
	Skipped   int
	Analyzed  int
	Drafted   int
	Blocked   int
	Sent      int
	Submitted int
	Errors    int
}

// Agent processes the inbox one batch at a time.
type Agent struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewAgent validates opts and creates an Agent.
func NewAgent(opts Options) (*Agent, error) {
	if opts.Mailbox == nil || opts.Analyser == nil || opts.Records == nil {
		return nil, errors.New("triage: mailbox, analyser and records are required")
	}
	if opts.Drafter == nil {
		return nil, errors.New("triage: drafter is required")
	}
	if opts.AutoRespond && opts.Sender == nil {
		return nil, errors.New("triage: auto-respond needs a sender")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Agent{
		opts: opts,
		log:  opts.Logger.With().Str("component", "triage").Logger(),
		now:  now,
	}, nil
}

// Name implements sync.Job.
func (a *Agent) Name() string { return "triage" }

// Tick implements sync.Job.
func (a *Agent) Tick(ctx context.Context) (int, error) {
	recs, err := a.ProcessInbox(ctx)
	return len(recs), err
}

// Stats returns a snapshot of the counters.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// ProcessInbox handles one batch of unread mail and returns the records
// it logged. Approval traffic stays unread for the approval workflow.
// A failure on one message is logged in its record and does not stop
// the batch.
func (a *Agent) ProcessInbox(ctx context.Context) ([]model.TriageRecord, error) {
	session, err := a.opts.Mailbox.Open(ctx)
	if err != nil {
		a.count(func(s *Stats) { s.Errors++ })
		return nil, fmt.Errorf("opening mailbox: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("closing mailbox session")
		}
	}()

	msgs, err := session.Unread(ctx, a.opts.BatchSize)
	if err != nil {
		a.count(func(s *Stats) { s.Errors++ })
		return nil, fmt.Errorf("fetching unread: %w", err)
	}

	var records []model.TriageRecord
	for _, msg := range msgs {
		if a.isApprovalTraffic(msg) {
			continue
		}
		a.count(func(s *Stats) { s.Fetched++ })

		if msg.MessageID != "" {
			seen, err := a.opts.Records.HasMessage(ctx, msg.MessageID)
			if err != nil {
				return records, fmt.Errorf("checking triage log: %w", err)
			}
			if seen {
				a.count(func(s *Stats) { s.Skipped++ })
				a.markRead(ctx, session, msg)
				continue
			}
		}

		rec := a.process(ctx, msg)
		if err := a.opts.Records.CreateTriageRecord(ctx, rec); err != nil {
			// Leave the message unread so the next tick retries it.
			return records, fmt.Errorf("logging %q: %w", msg.Subject, err)
		}
		messagesTotal.WithLabelValues(string(rec.Disposition)).Inc()
		records = append(records, rec)
		a.markRead(ctx, session, msg)
	}
	return records, nil
}

func (a *Agent) process(ctx context.Context, msg model.InboundMessage) model.TriageRecord {
	log := a.log.With().Str("message_id", msg.MessageID).Str("subject", msg.Subject).Logger()

	rec := model.TriageRecord{
		MessageID: msg.MessageID,
		UID:       msg.UID,
		Sender:    msg.From.Email,
		Subject:   msg.Subject,
		CreatedAt: a.now(),
	}

	analysis, err := a.opts.Analyser.Analyse(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("analysis failed")
		return a.failed(rec, err)
	}
	a.count(func(s *Stats) { s.Analyzed++ })

	rec.Category = analysis.Category
	rec.Priority = analysis.Priority
	rec.Sentiment = analysis.Sentiment
	rec.Summary = analysis.Summary
	rec.ActionRequired = analysis.ActionRequired
	rec.Confidence = analysis.Confidence
	rec.Disposition = model.DispositionAnalyzed

	if !ShouldReply(msg, analysis) {
		log.Info().Str("category", string(analysis.Category)).Msg("no reply needed")
		return rec
	}

	draft, err := a.opts.Drafter.Reply(ctx, msg, analysis, "")
	if err != nil {
		log.Error().Err(err).Msg("drafting reply failed")
		return a.failed(rec, err)
	}
	rec.ReplySubject = draft.Subject
	rec.ReplyBody = draft.BodyText
	rec.Disposition = model.DispositionDrafted
	a.count(func(s *Stats) { s.Drafted++ })

	if report := ai.Validate(draft); !report.OK() {
		log.Warn().Strs("errors", report.Errors).Msg("reply held for manual review")
		rec.Error = report.Err().Error()
		a.count(func(s *Stats) { s.Blocked++ })
		return rec
	}

	if !a.opts.AutoRespond {
		return rec
	}

	if a.needsApproval(msg.From) {
		if a.opts.Approvals == nil {
			log.Info().Str("to", msg.From.Email).Msg("external reply drafted, no approver configured")
			return rec
		}
		req, err := a.opts.Approvals.Submit(ctx, draft, msg.From)
		if err != nil {
			log.Error().Err(err).Msg("submitting reply for approval failed")
			return a.failed(rec, err)
		}
		rec.ApprovalID = req.ID
		rec.Disposition = model.DispositionSubmitted
		a.count(func(s *Stats) { s.Submitted++ })
		log.Info().Str("request_id", req.ID).Msg("reply submitted for approval")
		return rec
	}

	if _, err := a.opts.Sender.Send(ctx, draft); err != nil {
		log.Error().Err(err).Msg("sending reply failed")
		return a.failed(rec, err)
	}
	rec.Disposition = model.DispositionSent
	a.count(func(s *Stats) { s.Sent++ })
	log.Info().Str("to", msg.From.Email).Msg("reply sent")
	return rec
}

func (a *Agent) failed(rec model.TriageRecord, err error) model.TriageRecord {
	rec.Disposition = model.DispositionFailed
	rec.Error = err.Error()
	a.count(func(s *Stats) { s.Errors++ })
	return rec
}

// needsApproval reports whether a reply to the given recipient goes to
// the approver first.
func (a *Agent) needsApproval(to model.Address) bool {
	if !a.opts.ExternalOnly {
		return true
	}
	own := model.Address{Email: a.opts.Address}.Domain()
	return own == "" || to.Domain() != own
}

func (a *Agent) isApprovalTraffic(msg model.InboundMessage) bool {
	if a.opts.Approver != "" && msg.From.SameMailbox(a.opts.Approver) {
		return true
	}
	return strings.Contains(strings.ToUpper(msg.Subject), approval.SubjectMarker)
}

func (a *Agent) markRead(ctx context.Context, s email.Session, msg model.InboundMessage) {
	if err := s.MarkRead(ctx, msg.UID); err != nil {
		a.log.Warn().Err(err).Uint32("uid", msg.UID).Msg("marking message read")
	}
}

func (a *Agent) count(fn func(*Stats)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.stats)
}
