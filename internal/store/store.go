package store

import (
	"context"
	"time"

	"github.com/nhle/inbox-triage/internal/model"
)

// TriageFilter controls filtering and pagination for triage record queries.
type TriageFilter struct {
	Category    *model.Category
	Disposition *model.Disposition
	Sender      *string
	Since       *time.Time
	Limit       int
	Offset      int
}

// TriageStats aggregates the triage log.
type TriageStats struct {
	Total          int
	ActionRequired int
	ByCategory     map[model.Category]int
	ByDisposition  map[model.Disposition]int
}

// Store defines the persistence interface for the triage log and the
// approval audit trail. Approval requests themselves live in an
// ApprovalFile.
type Store interface {
	// === Triage log ===

	CreateTriageRecord(ctx context.Context, rec model.TriageRecord) error
	GetTriageRecord(ctx context.Context, id string) (*model.TriageRecord, error)
	ListTriageRecords(ctx context.Context, filter TriageFilter) ([]model.TriageRecord, error)
	GetTriageStats(ctx context.Context) (TriageStats, error)
	HasMessage(ctx context.Context, messageID string) (bool, error)

	// === Approval audit ===

	AppendDecisionEvent(ctx context.Context, ev model.DecisionEvent) error
	ListDecisionEvents(ctx context.Context, requestID string) ([]model.DecisionEvent, error)

	Close() error
}
