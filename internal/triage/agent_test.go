package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/email"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	tu "github.com/nhle/inbox-triage/tests/testutil"
)

type inbox struct {
	mu   sync.Mutex
	msgs []model.InboundMessage
	err  error
}

func (b *inbox) Open(context.Context) (email.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &session{box: b}, nil
}

func (b *inbox) seen(uid uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.msgs {
		if m.UID == uid {
			return m.Seen
		}
	}
	return false
}

type session struct{ box *inbox }

func (s *session) Unread(_ context.Context, limit int) ([]model.InboundMessage, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	var out []model.InboundMessage
	for _, m := range s.box.msgs {
		if !m.Seen {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *session) MarkRead(_ context.Context, uid uint32) error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	for i := range s.box.msgs {
		if s.box.msgs[i].UID == uid {
			s.box.msgs[i].Seen = true
		}
	}
	return nil
}

func (s *session) Close() error { return nil }

// bySubject returns a canned analysis keyed on the message subject.
type bySubject map[string]model.EmailAnalysis

func (m bySubject) Analyse(_ context.Context, msg model.InboundMessage) (model.EmailAnalysis, error) {
	a, ok := m[msg.Subject]
	if !ok {
		return model.EmailAnalysis{}, errors.New("model unavailable")
	}
	return a, nil
}

type drafter struct{ body string }

func (d drafter) Reply(_ context.Context, msg model.InboundMessage, _ model.EmailAnalysis, _ string) (model.Draft, error) {
	return model.Draft{To: []model.Address{msg.From}, Subject: "Re: " + msg.Subject, BodyText: d.body, InReplyTo: msg.MessageID}, nil
}

type sender struct{ sent []model.Draft }

func (s *sender) Send(_ context.Context, d model.Draft) (string, error) {
	s.sent = append(s.sent, d)
	return "id@test", nil
}

type submitter struct{ got []model.Address }

func (s *submitter) Submit(_ context.Context, _ model.Draft, to model.Address) (*model.ApprovalRequest, error) {
	s.got = append(s.got, to)
	return &model.ApprovalRequest{ID: "ABCDEF012345"}, nil
}

const goodBody = "Dear customer,\n\nThanks for reaching out. We will look into this today.\n\nBest regards"

var inquiry = model.EmailAnalysis{
	Category:       model.CategoryInquiry,
	Priority:       model.PriorityNormal,
	Sentiment:      model.SentimentNeutral,
	Summary:        "Asks about pricing",
	ActionRequired: true,
	Confidence:     0.85,
}

func msg(uid uint32, from, subject string) model.InboundMessage {
	return model.InboundMessage{
		UID:       uid,
		MessageID: subject + "@mail",
		From:      model.Address{Email: from},
		Subject:   subject,
		BodyText:  "Hello, a question for you.",
		Date:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	agent *Agent
	box   *inbox
	st    *store.SQLiteStore
	send  *sender
	subm  *submitter
}

func newFixture(t *testing.T, autoRespond bool, analyses bySubject, msgs ...model.InboundMessage) *fixture {
	t.Helper()
	f := &fixture{
		box:  &inbox{msgs: msgs},
		st:   tu.NewTestStore(t),
		send: &sender{},
		subm: &submitter{},
	}
	a, err := NewAgent(Options{
		Mailbox:      f.box,
		Analyser:     analyses,
		Drafter:      drafter{body: goodBody},
		Sender:       f.send,
		Records:      f.st,
		Approvals:    f.subm,
		Address:      "desk@acme.com",
		Approver:     "cfo@acme.com",
		AutoRespond:  autoRespond,
		ExternalOnly: true,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	f.agent = a
	return f
}

func TestProcessInboxDispositions(t *testing.T) {
	analyses := bySubject{
		"Pricing":      inquiry,
		"Internal ask": inquiry,
		"Weekly news":  {Category: model.CategoryNewsletter, Sentiment: model.SentimentNeutral},
	}
	f := newFixture(t, true, analyses,
		msg(1, "ann@customer.io", "Pricing"),
		msg(2, "bob@acme.com", "Internal ask"),
		msg(3, "news@list.io", "Weekly news"),
		msg(4, "ann@customer.io", "Unknown"),
	)
	before := testutil.ToFloat64(messagesTotal.WithLabelValues(string(model.DispositionSent)))

	recs, err := f.agent.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("ProcessInbox: %v", err)
	}

	want := []model.Disposition{
		model.DispositionSubmitted,
		model.DispositionSent,
		model.DispositionAnalyzed,
		model.DispositionFailed,
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, d := range want {
		if recs[i].Disposition != d {
			t.Errorf("record %d (%s) disposition = %s, want %s", i, recs[i].Subject, recs[i].Disposition, d)
		}
	}
	if recs[0].ApprovalID != "ABCDEF012345" || len(f.subm.got) != 1 || f.subm.got[0].Email != "ann@customer.io" {
		t.Errorf("approval routing: rec=%+v submitted=%v", recs[0], f.subm.got)
	}
	if len(f.send.sent) != 1 || f.send.sent[0].To[0].Email != "bob@acme.com" {
		t.Errorf("sent = %+v", f.send.sent)
	}
	if recs[3].Error == "" {
		t.Error("failed record has no error")
	}
	for uid := uint32(1); uid <= 4; uid++ {
		if !f.box.seen(uid) {
			t.Errorf("uid %d left unread", uid)
		}
	}

	stats := f.agent.Stats()
	if stats.Fetched != 4 || stats.Analyzed != 3 || stats.Sent != 1 || stats.Submitted != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := testutil.ToFloat64(messagesTotal.WithLabelValues(string(model.DispositionSent))) - before; got != 1 {
		t.Errorf("sent metric delta = %v, want 1", got)
	}

	stored, err := f.st.ListTriageRecords(context.Background(), store.TriageFilter{})
	if err != nil || len(stored) != 4 {
		t.Fatalf("stored %d records, err %v", len(stored), err)
	}
}

func TestProcessInboxDraftOnlyWithoutAutoRespond(t *testing.T) {
	f := newFixture(t, false, bySubject{"Pricing": inquiry}, msg(1, "ann@customer.io", "Pricing"))

	recs, err := f.agent.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("ProcessInbox: %v", err)
	}
	if len(recs) != 1 || recs[0].Disposition != model.DispositionDrafted || recs[0].ReplyBody != goodBody {
		t.Errorf("records = %+v", recs)
	}
	if len(f.send.sent) != 0 || len(f.subm.got) != 0 {
		t.Error("draft-only mode delivered mail")
	}
}

func TestProcessInboxLeavesApprovalTrafficUnread(t *testing.T) {
	f := newFixture(t, true, bySubject{"Pricing": inquiry},
		msg(1, "cfo@acme.com", "Re: something"),
		msg(2, "other@acme.com", "Re: [APPROVAL REQUIRED] Pricing [ID: ABCDEF012345]"),
		msg(3, "ann@customer.io", "Pricing"),
	)

	recs, err := f.agent.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("ProcessInbox: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if f.box.seen(1) || f.box.seen(2) {
		t.Error("approval traffic was marked read")
	}
}

func TestProcessInboxSkipsLoggedMessages(t *testing.T) {
	m := msg(1, "ann@customer.io", "Pricing")
	f := newFixture(t, false, bySubject{"Pricing": inquiry}, m)

	if err := f.st.CreateTriageRecord(context.Background(), model.TriageRecord{
		MessageID: m.MessageID, Sender: m.From.Email, Disposition: model.DispositionAnalyzed,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := f.agent.Tick(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Tick = %d, %v", n, err)
	}
	if !f.box.seen(1) || f.agent.Stats().Skipped != 1 {
		t.Errorf("seen=%v stats=%+v", f.box.seen(1), f.agent.Stats())
	}
}

func TestProcessInboxHoldsUnsafeReplies(t *testing.T) {
	f := newFixture(t, true, bySubject{"Pricing": inquiry}, msg(1, "bob@acme.com", "Pricing"))
	f.agent.opts.Drafter = drafter{body: "Dear Bob,\n\nYour password is hunter2, keep it safe.\n\nBest"}

	recs, err := f.agent.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("ProcessInbox: %v", err)
	}
	if recs[0].Disposition != model.DispositionDrafted || recs[0].Error == "" {
		t.Errorf("record = %+v", recs[0])
	}
	if len(f.send.sent) != 0 || f.agent.Stats().Blocked != 1 {
		t.Errorf("sent=%d stats=%+v", len(f.send.sent), f.agent.Stats())
	}
}

func TestProcessInboxMailboxError(t *testing.T) {
	f := newFixture(t, false, bySubject{})
	f.box.err = &email.AuthError{Protocol: "imap", Message: "bad password"}

	_, err := f.agent.ProcessInbox(context.Background())
	if !email.IsAuthError(err) {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestNewAgentRequiresDependencies(t *testing.T) {
	if _, err := NewAgent(Options{}); err == nil {
		t.Error("expected error for empty options")
	}
	_, err := NewAgent(Options{
		Mailbox: &inbox{}, Analyser: bySubject{}, Drafter: drafter{}, Records: tu.NewTestStore(t),
		AutoRespond: true,
	})
	if err == nil {
		t.Error("expected error for auto-respond without sender")
	}
}

func TestShouldReply(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		analysis model.EmailAnalysis
		want     bool
	}{
		{"inquiry", "Pricing", "", model.EmailAnalysis{Category: model.CategoryInquiry}, true},
		{"spam", "Win", "", model.EmailAnalysis{Category: model.CategorySpam, ActionRequired: true}, false},
		{"angry complaint", "Broken", "", model.EmailAnalysis{Category: model.CategoryComplaint, Sentiment: model.SentimentNegative, ActionRequired: true}, false},
		{"calm complaint", "Broken", "", model.EmailAnalysis{Category: model.CategoryComplaint, Sentiment: model.SentimentNeutral, ActionRequired: true}, true},
		{"other with question", "Invoice", "I have a question about line 3", model.EmailAnalysis{Category: model.CategoryOther}, true},
		{"other reply", "Re: Invoice", "Thanks!", model.EmailAnalysis{Category: model.CategoryOther, Sentiment: model.SentimentPositive}, true},
		{"other negative reply", "Re: Invoice", "No.", model.EmailAnalysis{Category: model.CategoryOther, Sentiment: model.SentimentNegative}, false},
		{"other plain", "FYI", "See attached.", model.EmailAnalysis{Category: model.CategoryOther}, false},
		{"personal", "Lunch", "", model.EmailAnalysis{Category: model.CategoryPersonal, ActionRequired: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.InboundMessage{Subject: tt.subject, BodyText: tt.body}
			if got := ShouldReply(m, tt.analysis); got != tt.want {
				t.Errorf("ShouldReply = %v, want %v", got, tt.want)
			}
		})
	}
}
