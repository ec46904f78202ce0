package approval

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/email"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
)

const (
	testApprover = "cfo@x.com"
	testVendor   = "vendor@x.com"
)

// fakeSender records every draft. Sends to an address in failFor return
// that error.
type fakeSender struct {
	mu      sync.Mutex
	sent    []model.Draft
	failFor map[string]error

	// delay is slept before each send, outside the lock.
	delay time.Duration
}

func (s *fakeSender) Send(_ context.Context, d model.Draft) (string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, to := range d.Recipients() {
		if err := s.failFor[to]; err != nil {
			return "", err
		}
	}
	s.sent = append(s.sent, d)
	return fmt.Sprintf("msg-%d@test", len(s.sent)), nil
}

func (s *fakeSender) to(addr string) []model.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Draft
	for _, d := range s.sent {
		for _, r := range d.Recipients() {
			if r == addr {
				out = append(out, d)
			}
		}
	}
	return out
}

func (s *fakeSender) fail(addr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor == nil {
		s.failFor = make(map[string]error)
	}
	if err == nil {
		delete(s.failFor, addr)
		return
	}
	s.failFor[addr] = err
}

// fakeMailbox is an in-memory INBOX.
type fakeMailbox struct {
	mu      sync.Mutex
	msgs    []model.InboundMessage
	nextUID uint32
	opens   int
	closes  int
}

func (m *fakeMailbox) Open(context.Context) (email.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return &fakeSession{box: m}, nil
}

func (m *fakeMailbox) deliver(from, subject, body string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUID++
	m.msgs = append(m.msgs, model.InboundMessage{
		UID:      m.nextUID,
		From:     model.Address{Email: from},
		Subject:  subject,
		BodyText: body,
	})
	return m.nextUID
}

func (m *fakeMailbox) seen(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.UID == uid {
			return msg.Seen
		}
	}
	return false
}

type fakeSession struct {
	box *fakeMailbox
}

func (s *fakeSession) Unread(_ context.Context, limit int) ([]model.InboundMessage, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()

	var out []model.InboundMessage
	for _, msg := range s.box.msgs {
		if !msg.Seen {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeSession) MarkRead(_ context.Context, uid uint32) error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	for i := range s.box.msgs {
		if s.box.msgs[i].UID == uid {
			s.box.msgs[i].Seen = true
		}
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	s.box.closes++
	return nil
}

// fakeAudit collects decision events.
type fakeAudit struct {
	mu     sync.Mutex
	events []model.DecisionEvent
}

func (a *fakeAudit) AppendDecisionEvent(_ context.Context, ev model.DecisionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *fakeAudit) outcomes(id string) []model.DecisionOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.DecisionOutcome
	for _, ev := range a.events {
		if ev.RequestID == id {
			out = append(out, ev.Outcome)
		}
	}
	return out
}

// stepClock advances one second on every call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type harness struct {
	wf     *Workflow
	file   *store.ApprovalFile
	sender *fakeSender
	box    *fakeMailbox
	audit  *fakeAudit
	clock  *stepClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		file:   store.NewApprovalFile(filepath.Join(t.TempDir(), "pending_approvals.json")),
		sender: &fakeSender{},
		box:    &fakeMailbox{},
		audit:  &fakeAudit{},
		clock:  newStepClock(),
	}
	h.wf = h.reopen(t)
	return h
}

// reopen builds a fresh workflow over the same store, as a restart would.
func (h *harness) reopen(t *testing.T) *Workflow {
	t.Helper()

	wf, err := New(Options{
		Sender:   h.sender,
		Mailbox:  h.box,
		Store:    h.file,
		Approver: testApprover,
		Audit:    h.audit,
		Logger:   zerolog.Nop(),
		Now:      h.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return wf
}

func (h *harness) submit(t *testing.T, subject, body string) *model.ApprovalRequest {
	t.Helper()

	req, err := h.wf.Submit(context.Background(),
		model.Draft{Subject: subject, BodyText: body},
		model.Address{Email: testVendor, Name: "Vendor"},
	)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return req
}

func (h *harness) check(t *testing.T) []*model.ApprovalRequest {
	t.Helper()

	decided, err := h.wf.CheckDecisions(context.Background())
	if err != nil {
		t.Fatalf("CheckDecisions: %v", err)
	}
	return decided
}

// recorder counts listener invocations per event.
type recorder struct {
	mu    sync.Mutex
	calls []string
	last  map[string]*model.ApprovalRequest
}

func (r *recorder) attach(wf *Workflow) {
	r.last = make(map[string]*model.ApprovalRequest)
	wf.OnApproved(r.listener("approved"))
	wf.OnRejected(r.listener("rejected"))
	wf.OnSent(r.listener("sent"))
}

func (r *recorder) listener(kind string) Listener {
	return func(req *model.ApprovalRequest) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, kind)
		r.last[kind] = req
		return nil
	}
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == kind {
			n++
		}
	}
	return n
}
