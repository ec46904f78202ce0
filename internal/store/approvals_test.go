package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nhle/inbox-triage/internal/model"
)

func newRequest(id string, created time.Time) *model.ApprovalRequest {
	return &model.ApprovalRequest{
		ID: id,
		Draft: model.Draft{
			To:       []model.Address{{Email: "approver@acme.test"}},
			Subject:  "Invoice Q",
			BodyText: "please review",
		},
		FinalRecipient: model.Address{Email: "vendor@x.com", Name: "Vendor"},
		Approver:       "approver@acme.test",
		Status:         model.ApprovalPending,
		CreatedAt:      created,
	}
}

func TestApprovalFileMissingIsEmpty(t *testing.T) {
	f := NewApprovalFile(filepath.Join(t.TempDir(), "approvals.json"))

	reqs, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("got %d requests, want 0", len(reqs))
	}
}

func TestApprovalFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "approvals.json")
	f := NewApprovalFile(path)

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sent := created.Add(time.Hour)

	pending := newRequest("AAAAAAAAAAAA", created)
	done := newRequest("BBBBBBBBBBBB", created)
	done.Draft.BodyHTML = "<p>hi</p>"
	done.Approve(sent, "looks good")
	done.MarkSent(sent)
	done.ApprovalMessageID = "m-1@acme.test"

	if err := f.Upsert(pending, done); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d requests, want 2", len(got))
	}

	if got[0].ID != pending.ID || got[0].Status != model.ApprovalPending {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].ApprovedAt != nil || got[0].SentAt != nil {
		t.Errorf("pending request has decision timestamps")
	}

	b := got[1]
	if b.Status != model.ApprovalApproved || b.Notes != "looks good" {
		t.Errorf("second status=%s notes=%q", b.Status, b.Notes)
	}
	if b.SentAt == nil || !b.SentAt.Equal(sent) {
		t.Errorf("sent_at = %v, want %v", b.SentAt, sent)
	}
	if !b.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", b.CreatedAt, created)
	}
	if b.FinalRecipient != done.FinalRecipient {
		t.Errorf("final recipient = %+v", b.FinalRecipient)
	}
	if b.Draft.BodyHTML != "<p>hi</p>" || b.ApprovalMessageID != "m-1@acme.test" {
		t.Errorf("draft/html lost: %+v", b)
	}
}

func TestApprovalFileWritesNullsAndFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	f := NewApprovalFile(path)

	req := newRequest("CCCCCCCCCCCC", time.Now())
	req.FinalRecipient.Name = ""
	if err := f.Upsert(req); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`"request_id": "CCCCCCCCCCCC"`,
		`"draft_to": [`,
		`"final_recipient_name": null`,
		`"approved_at": null`,
		`"sent_at": null`,
		`"status": "pending"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("file missing %s:\n%s", want, text)
		}
	}
}

func TestApprovalFileUpsertReplacesInPlace(t *testing.T) {
	f := NewApprovalFile(filepath.Join(t.TempDir(), "approvals.json"))
	now := time.Now()

	a := newRequest("A00000000000", now)
	b := newRequest("B00000000000", now)
	if err := f.Upsert(a, b); err != nil {
		t.Fatal(err)
	}

	a2 := a.Clone()
	a2.Reject(now, "no")
	if err := f.Upsert(a2); err != nil {
		t.Fatal(err)
	}

	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d requests, want 2", len(got))
	}
	if got[0].ID != a.ID || got[0].Status != model.ApprovalRejected {
		t.Errorf("first = %s %s", got[0].ID, got[0].Status)
	}
	if got[1].Status != model.ApprovalPending {
		t.Errorf("unrelated record changed: %s", got[1].Status)
	}
}

func TestApprovalFileKeepsOtherWritersRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	ours := NewApprovalFile(path)
	theirs := NewApprovalFile(path)
	now := time.Now()

	if err := ours.Upsert(newRequest("A00000000000", now)); err != nil {
		t.Fatal(err)
	}
	if err := theirs.Upsert(newRequest("B00000000000", now)); err != nil {
		t.Fatal(err)
	}
	if err := ours.Upsert(newRequest("C00000000000", now)); err != nil {
		t.Fatal(err)
	}

	got, err := ours.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d requests, want 3", len(got))
	}
}

func TestApprovalFileHandlesOnOnePathShareTheLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	handles := []*ApprovalFile{NewApprovalFile(path), NewApprovalFile(path)}
	now := time.Now()

	var wg sync.WaitGroup
	for h, f := range handles {
		h, f := h, f
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("%c%011d", 'A'+h, i)
				if err := f.Upsert(newRequest(id, now)); err != nil {
					t.Errorf("Upsert %s: %v", id, err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := handles[0].Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Errorf("store holds %d records, want 100", len(got))
	}
}

func TestApprovalFileClaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	f := NewApprovalFile(path)
	other := NewApprovalFile(path)
	now := time.Now()

	decided := newRequest("B00000000000", now)
	decided.Reject(now, "no")
	if err := f.Upsert(newRequest("A00000000000", now), decided); err != nil {
		t.Fatal(err)
	}

	r, err := f.Claim("A00000000000")
	if err != nil || r.ID != "A00000000000" {
		t.Fatalf("Claim = %v, %v", r, err)
	}
	if _, err := other.Claim("A00000000000"); !errors.Is(err, ErrClaimed) {
		t.Errorf("second claim err = %v, want ErrClaimed", err)
	}

	f.Release("A00000000000")
	if _, err := other.Claim("A00000000000"); err != nil {
		t.Errorf("claim after release: %v", err)
	}
	other.Release("A00000000000")

	if _, err := f.Claim("B00000000000"); !errors.Is(err, ErrNotPending) {
		t.Errorf("decided claim err = %v, want ErrNotPending", err)
	}
	if _, err := f.Claim("C00000000000"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("missing claim err = %v, want ErrRequestNotFound", err)
	}
}

func TestApprovalFileUpdate(t *testing.T) {
	f := NewApprovalFile(filepath.Join(t.TempDir(), "approvals.json"))
	if err := f.Upsert(newRequest("A00000000000", time.Now())); err != nil {
		t.Fatal(err)
	}

	updated, err := f.Update("A00000000000", func(r *model.ApprovalRequest) error {
		r.Reject(time.Now(), "nope")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != model.ApprovalRejected {
		t.Errorf("status = %s", updated.Status)
	}

	stop := errors.New("stop")
	if _, err := f.Update("A00000000000", func(*model.ApprovalRequest) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}

	if _, err := f.Update("missing", func(*model.ApprovalRequest) error { return nil }); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("err = %v, want ErrRequestNotFound", err)
	}

	r, err := f.Get("A00000000000")
	if err != nil {
		t.Fatal(err)
	}
	if r.Notes != "nope" {
		t.Errorf("notes = %q", r.Notes)
	}
}

func TestApprovalFileMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"object instead of array", `{"request_id": "x"}`},
		{"unknown status", `[{"request_id": "x", "status": "maybe", "created_at": null}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "approvals.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			f := NewApprovalFile(path)

			if _, err := f.Load(); !errors.Is(err, ErrMalformed) {
				t.Errorf("Load err = %v, want ErrMalformed", err)
			}
			if err := f.Upsert(newRequest("A00000000000", time.Now())); !errors.Is(err, ErrMalformed) {
				t.Errorf("Upsert err = %v, want ErrMalformed", err)
			}

			data, _ := os.ReadFile(path)
			if string(data) != tt.content {
				t.Errorf("malformed file was overwritten")
			}
		})
	}
}

func TestTimestampAcceptsZonelessISO(t *testing.T) {
	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(`"2025-01-15T09:30:00.123456"`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if ts.Time == nil || ts.Time.Hour() != 9 || ts.Time.Minute() != 30 {
		t.Errorf("parsed = %v", ts.Time)
	}

	if err := ts.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Error("expected error for non-ISO timestamp")
	}
}
