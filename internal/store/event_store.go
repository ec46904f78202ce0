package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inbox-triage/internal/model"
)

// AppendDecisionEvent records one step in a request's audit trail.
func (s *SQLiteStore) AppendDecisionEvent(ctx context.Context, ev model.DecisionEvent) error {
	if ev.RequestID == "" {
		return fmt.Errorf("decision event request id must not be empty")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_events (id, request_id, outcome, channel, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RequestID, string(ev.Outcome), string(ev.Channel), ev.Notes, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting decision event for %s: %w", ev.RequestID, err)
	}
	return nil
}

// ListDecisionEvents returns the audit trail of a request, oldest first.
func (s *SQLiteStore) ListDecisionEvents(
	ctx context.Context, requestID string,
) ([]model.DecisionEvent, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, request_id, outcome, channel, notes, created_at
		FROM decision_events
		WHERE request_id = ?
		ORDER BY created_at, rowid`, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying decision events: %w", err)
	}
	defer rows.Close()

	var events []model.DecisionEvent
	for rows.Next() {
		var (
			ev        model.DecisionEvent
			outcome   string
			channel   string
			createdAt time.Time
		)
		if err := rows.Scan(
			&ev.ID, &ev.RequestID, &outcome, &channel, &ev.Notes, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning decision event row: %w", err)
		}
		ev.Outcome = model.DecisionOutcome(outcome)
		ev.Channel = model.DecisionChannel(channel)
		ev.CreatedAt = createdAt
		events = append(events, ev)
	}
	return events, rows.Err()
}
