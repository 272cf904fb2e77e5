package store

import "time"

// Schema is applied on open. Migrations for older databases are handled
// best-effort in NewStore.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS approvals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	approval_id TEXT UNIQUE NOT NULL,
	conversation_id TEXT NOT NULL,
	message_id TEXT,
	operation_json TEXT NOT NULL,
	dryrun_json TEXT NOT NULL DEFAULT '',
	risk_json TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	artifact_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	decided_by TEXT,
	decision_method TEXT,
	decision_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	timeout_at DATETIME NOT NULL,
	decided_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_approvals_conversation ON approvals(conversation_id, status);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	audit_id TEXT UNIQUE NOT NULL,
	correlation_id TEXT NOT NULL,
	session_id TEXT,
	conversation_id TEXT,
	record_json TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_records(correlation_id);
`

// SessionRow holds session-scoped model/provider preference overrides.
type SessionRow struct {
	SessionID string    `json:"session_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRow is one stored conversation message.
type MessageRow struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ApprovalRow is the persisted form of an approval request.
type ApprovalRow struct {
	ApprovalID      string     `json:"approval_id"`
	ConversationID  string     `json:"conversation_id"`
	MessageID       string     `json:"message_id,omitempty"`
	OperationJSON   string     `json:"operation_json"`
	DryRunJSON      string     `json:"dryrun_json"`
	RiskJSON        string     `json:"risk_json"`
	Summary         string     `json:"summary"`
	ArtifactID      string     `json:"artifact_id,omitempty"`
	Status          string     `json:"status"` // pending, approved, rejected, timeout
	DecidedBy       string     `json:"decided_by,omitempty"`
	DecisionMethod  string     `json:"decision_method,omitempty"`
	DecisionMessage string     `json:"decision_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	TimeoutAt       time.Time  `json:"timeout_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// AuditRow is one redacted per-turn audit record.
type AuditRow struct {
	AuditID        string    `json:"audit_id"`
	CorrelationID  string    `json:"correlation_id"`
	SessionID      string    `json:"session_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	RecordJSON     string    `json:"record_json"`
	CreatedAt      time.Time `json:"created_at"`
}
