package model

import (
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"inquiry", CategoryInquiry},
		{" Complaint ", CategoryComplaint},
		{"SPAM", CategorySpam},
		{"invoice", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePriorityAndSentimentDefaults(t *testing.T) {
	if got := ParsePriority("URGENT"); got != PriorityUrgent {
		t.Errorf("ParsePriority(URGENT) = %q", got)
	}
	if got := ParsePriority("critical"); got != PriorityNormal {
		t.Errorf("ParsePriority(critical) = %q, want normal", got)
	}
	if got := ParseSentiment("Negative"); got != SentimentNegative {
		t.Errorf("ParseSentiment(Negative) = %q", got)
	}
	if got := ParseSentiment("angry"); got != SentimentNeutral {
		t.Errorf("ParseSentiment(angry) = %q, want neutral", got)
	}
}

func TestAddress(t *testing.T) {
	a := Address{Email: "Vendor@X.com", Name: "Vendor"}
	if a.String() != "Vendor <Vendor@X.com>" {
		t.Errorf("String() = %q", a.String())
	}
	if a.Domain() != "x.com" {
		t.Errorf("Domain() = %q", a.Domain())
	}
	if !a.SameMailbox(" vendor@x.com ") {
		t.Error("SameMailbox should ignore case and spaces")
	}
	if (Address{Email: "nobody"}).Domain() != "" {
		t.Error("Domain() of address without @ should be empty")
	}
}

func TestApprovalRequestTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req := &ApprovalRequest{
		ID:             "ABCDEF123456",
		Draft:          Draft{To: []Address{{Email: "vendor@x.com"}}, Subject: "Invoice Q", BodyText: "text"},
		FinalRecipient: Address{Email: "vendor@x.com"},
		Status:         ApprovalPending,
		CreatedAt:      now,
	}

	clone := req.Clone()
	req.Approve(now.Add(time.Minute), "ok")
	req.MarkSent(now.Add(2 * time.Minute))

	if clone.Status != ApprovalPending || clone.ApprovedAt != nil || clone.SentAt != nil {
		t.Fatalf("clone mutated: %+v", clone)
	}
	if !req.Status.IsTerminal() || req.ApprovedAt == nil || req.SentAt == nil {
		t.Fatalf("approve did not record: %+v", req)
	}

	final := req.FinalDraft()
	if len(final.To) != 1 || final.To[0].Email != "vendor@x.com" || final.Subject != "Invoice Q" {
		t.Errorf("FinalDraft = %+v", final)
	}
}
