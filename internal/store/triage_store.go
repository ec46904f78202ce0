package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inbox-triage/internal/model"
)

const triageColumns = `id, message_id, uid, sender, subject,
	category, priority, sentiment, summary, action_required, confidence,
	reply_subject, reply_body, disposition, approval_id, error, created_at`

// CreateTriageRecord inserts a record. An empty ID is replaced with a new
// UUID and a zero CreatedAt with the current time.
func (s *SQLiteStore) CreateTriageRecord(ctx context.Context, rec model.TriageRecord) error {
	if rec.Sender == "" {
		return fmt.Errorf("triage record sender must not be empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Category == "" {
		rec.Category = model.CategoryOther
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triage_records (`+triageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MessageID, int64(rec.UID), rec.Sender, rec.Subject,
		string(rec.Category), string(rec.Priority), string(rec.Sentiment),
		rec.Summary, boolToInt(rec.ActionRequired), rec.Confidence,
		rec.ReplySubject, rec.ReplyBody, string(rec.Disposition),
		rec.ApprovalID, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting triage record: %w", err)
	}
	return nil
}

// GetTriageRecord returns a single record by ID.
func (s *SQLiteStore) GetTriageRecord(ctx context.Context, id string) (*model.TriageRecord, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+triageColumns+" FROM triage_records WHERE id = ?", id)

	rec, err := scanTriageRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("triage record %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTriageRecords returns records matching filter, newest first.
func (s *SQLiteStore) ListTriageRecords(
	ctx context.Context, filter TriageFilter,
) ([]model.TriageRecord, error) {
	query, args := buildTriageQuery(filter)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triage records: %w", err)
	}
	defer rows.Close()

	var records []model.TriageRecord
	for rows.Next() {
		rec, err := scanTriageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasMessage reports whether a record already exists for the Message-ID.
func (s *SQLiteStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}

	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM triage_records WHERE message_id = ?", messageID)
	if err != nil {
		return false, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return count > 0, nil
}

// GetTriageStats counts records by category and by disposition.
func (s *SQLiteStore) GetTriageStats(ctx context.Context) (TriageStats, error) {
	stats := TriageStats{
		ByCategory:    make(map[model.Category]int),
		ByDisposition: make(map[model.Disposition]int),
	}

	err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM triage_records")
	if err != nil {
		return stats, fmt.Errorf("counting triage records: %w", err)
	}

	err = s.db.GetContext(ctx, &stats.ActionRequired,
		"SELECT COUNT(*) FROM triage_records WHERE action_required = 1")
	if err != nil {
		return stats, fmt.Errorf("counting action required: %w", err)
	}

	var byCategory []struct {
		Key   string `db:"k"`
		Count int    `db:"n"`
	}
	err = s.db.SelectContext(ctx, &byCategory,
		"SELECT category AS k, COUNT(*) AS n FROM triage_records GROUP BY category")
	if err != nil {
		return stats, fmt.Errorf("grouping by category: %w", err)
	}
	for _, c := range byCategory {
		stats.ByCategory[model.Category(c.Key)] = c.Count
	}

	var byDisposition []struct {
		Key   string `db:"k"`
		Count int    `db:"n"`
	}
	err = s.db.SelectContext(ctx, &byDisposition,
		"SELECT disposition AS k, COUNT(*) AS n FROM triage_records GROUP BY disposition")
	if err != nil {
		return stats, fmt.Errorf("grouping by disposition: %w", err)
	}
	for _, d := range byDisposition {
		stats.ByDisposition[model.Disposition(d.Key)] = d.Count
	}

	return stats, nil
}

// buildTriageQuery constructs the SQL query and args for a TriageFilter.
func buildTriageQuery(filter TriageFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.Disposition != nil {
		conditions = append(conditions, "disposition = ?")
		args = append(args, string(*filter.Disposition))
	}
	if filter.Sender != nil && *filter.Sender != "" {
		conditions = append(conditions, "LOWER(sender) = LOWER(?)")
		args = append(args, *filter.Sender)
	}
	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT " + triageColumns + " FROM triage_records"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query, args
}

// scanTriageRecord scans a triage row from sqlx.Rows or sqlx.Row.
func scanTriageRecord(rows interface{ Scan(dest ...interface{}) error }) (model.TriageRecord, error) {
	var (
		rec            model.TriageRecord
		uid            int64
		category       string
		priority       string
		sentiment      string
		actionRequired int
		disposition    string
		createdAt      time.Time
	)

	err := rows.Scan(
		&rec.ID, &rec.MessageID, &uid, &rec.Sender, &rec.Subject,
		&category, &priority, &sentiment, &rec.Summary, &actionRequired, &rec.Confidence,
		&rec.ReplySubject, &rec.ReplyBody, &disposition, &rec.ApprovalID, &rec.Error, &createdAt,
	)
	if err != nil {
		return model.TriageRecord{}, fmt.Errorf("scanning triage row: %w", err)
	}

	rec.UID = uint32(uid)
	rec.Category = model.Category(category)
	rec.Priority = model.Priority(priority)
	rec.Sentiment = model.Sentiment(sentiment)
	rec.ActionRequired = actionRequired != 0
	rec.Disposition = model.Disposition(disposition)
	rec.CreatedAt = createdAt

	return rec, nil
}
