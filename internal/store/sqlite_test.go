package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	"github.com/nhle/inbox-triage/tests/testutil"
)

func TestTriageRecordsCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	records := []model.TriageRecord{
		{MessageID: "m1@x", UID: 7, Sender: "a@x.com", Subject: "Refund", Category: model.CategoryComplaint,
			Priority: model.PriorityHigh, Sentiment: model.SentimentNegative, ActionRequired: true,
			Confidence: 0.85, Disposition: model.DispositionSubmitted, ApprovalID: "AAAAAAAAAAAA", CreatedAt: base},
		{MessageID: "m2@x", Sender: "b@x.com", Subject: "News", Category: model.CategoryNewsletter,
			Disposition: model.DispositionAnalyzed, CreatedAt: base.Add(time.Minute)},
		{MessageID: "m3@x", Sender: "A@X.com", Subject: "Question", Category: model.CategoryInquiry,
			ActionRequired: true, Disposition: model.DispositionDrafted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := s.CreateTriageRecord(ctx, r); err != nil {
			t.Fatalf("CreateTriageRecord: %v", err)
		}
	}

	all, err := s.ListTriageRecords(ctx, store.TriageFilter{})
	if err != nil {
		t.Fatalf("ListTriageRecords: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	if all[0].MessageID != "m3@x" {
		t.Errorf("newest first: got %s", all[0].MessageID)
	}
	last := all[2]
	if last.UID != 7 || !last.ActionRequired || last.ApprovalID != "AAAAAAAAAAAA" || last.Confidence != 0.85 {
		t.Errorf("fields lost: %+v", last)
	}
	if last.ID == "" {
		t.Error("ID not generated")
	}

	tests := []struct {
		name   string
		filter store.TriageFilter
		want   int
	}{
		{"by category", store.TriageFilter{Category: ptr(model.CategoryNewsletter)}, 1},
		{"by disposition", store.TriageFilter{Disposition: ptr(model.DispositionSubmitted)}, 1},
		{"by sender case-insensitive", store.TriageFilter{Sender: ptr("a@x.com")}, 2},
		{"limit", store.TriageFilter{Limit: 2}, 2},
		{"offset without limit", store.TriageFilter{Offset: 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTriageRecords(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestTriageStatsAndHasMessage(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	for _, r := range []model.TriageRecord{
		{MessageID: "m1@x", Sender: "a@x.com", Category: model.CategorySupport, ActionRequired: true, Disposition: model.DispositionSent},
		{MessageID: "m2@x", Sender: "a@x.com", Category: model.CategorySupport, Disposition: model.DispositionAnalyzed},
		{MessageID: "m3@x", Sender: "a@x.com", Category: model.CategorySpam, Disposition: model.DispositionFailed, Error: "boom"},
	} {
		if err := s.CreateTriageRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.GetTriageStats(ctx)
	if err != nil {
		t.Fatalf("GetTriageStats: %v", err)
	}
	if stats.Total != 3 || stats.ActionRequired != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByCategory[model.CategorySupport] != 2 || stats.ByDisposition[model.DispositionFailed] != 1 {
		t.Errorf("groups = %+v / %+v", stats.ByCategory, stats.ByDisposition)
	}

	seen, err := s.HasMessage(ctx, "m2@x")
	if err != nil || !seen {
		t.Errorf("HasMessage(m2) = %v, %v", seen, err)
	}
	seen, _ = s.HasMessage(ctx, "nope@x")
	if seen {
		t.Error("HasMessage(unknown) = true")
	}
	seen, _ = s.HasMessage(ctx, "")
	if seen {
		t.Error("HasMessage(\"\") = true")
	}
}

func TestCreateTriageRecordRequiresSender(t *testing.T) {
	s := testutil.NewTestStore(t)
	if err := s.CreateTriageRecord(context.Background(), model.TriageRecord{Disposition: model.DispositionAnalyzed}); err == nil {
		t.Fatal("expected error for empty sender")
	}
}

func TestGetTriageRecordNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	if _, err := s.GetTriageRecord(context.Background(), "missing"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestDecisionEvents(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	steps := []model.DecisionEvent{
		{RequestID: "AAAAAAAAAAAA", Outcome: model.OutcomeSubmitted, Channel: model.ChannelCLI, CreatedAt: base},
		{RequestID: "BBBBBBBBBBBB", Outcome: model.OutcomeSubmitted, Channel: model.ChannelCLI, CreatedAt: base},
		{RequestID: "AAAAAAAAAAAA", Outcome: model.OutcomeApproved, Channel: model.ChannelMail, Notes: "ok", CreatedAt: base.Add(time.Minute)},
		{RequestID: "AAAAAAAAAAAA", Outcome: model.OutcomeSent, Channel: model.ChannelMail, CreatedAt: base.Add(time.Minute)},
	}
	for _, ev := range steps {
		if err := s.AppendDecisionEvent(ctx, ev); err != nil {
			t.Fatalf("AppendDecisionEvent: %v", err)
		}
	}

	got, err := s.ListDecisionEvents(ctx, "AAAAAAAAAAAA")
	if err != nil {
		t.Fatalf("ListDecisionEvents: %v", err)
	}
	want := []model.DecisionOutcome{model.OutcomeSubmitted, model.OutcomeApproved, model.OutcomeSent}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.Outcome != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Outcome, want[i])
		}
	}
	if got[1].Channel != model.ChannelMail || got[1].Notes != "ok" {
		t.Errorf("approved event = %+v", got[1])
	}

	if err := s.AppendDecisionEvent(ctx, model.DecisionEvent{Outcome: model.OutcomeSent}); err == nil {
		t.Error("expected error for event without request id")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := t.TempDir() + "/triage.db"
	for i := 0; i < 2; i++ {
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func ptr[T any](v T) *T { return &v }
