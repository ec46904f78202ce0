package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS triage_records (
	id              TEXT PRIMARY KEY,
	message_id      TEXT NOT NULL DEFAULT '',
	uid             INTEGER NOT NULL DEFAULT 0,
	sender          TEXT NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT 'other',
	priority        TEXT NOT NULL DEFAULT 'normal',
	sentiment       TEXT NOT NULL DEFAULT 'neutral',
	summary         TEXT NOT NULL DEFAULT '',
	action_required INTEGER NOT NULL DEFAULT 0 CHECK(action_required IN (0, 1)),
	confidence      REAL NOT NULL DEFAULT 0,
	reply_subject   TEXT NOT NULL DEFAULT '',
	reply_body      TEXT NOT NULL DEFAULT '',
	disposition     TEXT NOT NULL CHECK(disposition IN ('analyzed', 'drafted', 'sent', 'submitted', 'failed')),
	approval_id     TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_triage_message_id ON triage_records(message_id);
CREATE INDEX IF NOT EXISTS idx_triage_category ON triage_records(category);
CREATE INDEX IF NOT EXISTS idx_triage_disposition ON triage_records(disposition);
CREATE INDEX IF NOT EXISTS idx_triage_created_at ON triage_records(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS decision_events (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	outcome    TEXT NOT NULL CHECK(outcome IN ('submitted', 'approved', 'rejected', 'sent')),
	channel    TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_decision_events_request_id
	ON decision_events(request_id, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
