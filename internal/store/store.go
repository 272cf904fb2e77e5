// Package store provides sqlite persistence for conversations, approvals,
// artifacts, and audit records.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotPending is returned when a status transition is attempted on an
// approval that already left the pending state.
var ErrNotPending = errors.New("approval is not pending")

// Store owns the sqlite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and applies the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	// Best-effort migration for databases created before decision metadata
	// was recorded (no-op if the columns exist).
	_, _ = db.Exec(`ALTER TABLE approvals ADD COLUMN decision_method TEXT`)
	_, _ = db.Exec(`ALTER TABLE approvals ADD COLUMN decision_message TEXT`)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Sessions & messages
// ---------------------------------------------------------------------------

// AppendMessage records one conversation message for a session.
func (s *Store) AppendMessage(sessionID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	return err
}

// RecentMessages returns up to limit most recent messages for a session, in
// chronological order.
func (s *Store) RecentMessages(sessionID string, limit int) ([]MessageRow, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// SetSessionPrefs stores the session-scoped provider/model override.
func (s *Store) SetSessionPrefs(sessionID, provider, model string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, provider, model) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET provider = excluded.provider,
			model = excluded.model, updated_at = CURRENT_TIMESTAMP`,
		sessionID, provider, model,
	)
	return err
}

// SessionPrefs returns the session-scoped provider/model override, empty
// strings when none is stored.
func (s *Store) SessionPrefs(sessionID string) (provider, model string, err error) {
	err = s.db.QueryRow(
		`SELECT provider, model FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&provider, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return provider, model, err
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

// InsertApproval persists a new approval request in pending state.
func (s *Store) InsertApproval(row *ApprovalRow) error {
	_, err := s.db.Exec(
		`INSERT INTO approvals (approval_id, conversation_id, message_id,
			operation_json, dryrun_json, risk_json, summary, artifact_id,
			status, created_at, timeout_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		row.ApprovalID, row.ConversationID, nullable(row.MessageID),
		row.OperationJSON, row.DryRunJSON, row.RiskJSON, row.Summary,
		nullable(row.ArtifactID), row.CreatedAt, row.TimeoutAt,
	)
	return err
}

// GetApproval fetches one approval by id.
func (s *Store) GetApproval(approvalID string) (*ApprovalRow, error) {
	row := s.db.QueryRow(
		`SELECT approval_id, conversation_id, COALESCE(message_id, ''),
			operation_json, dryrun_json, risk_json, summary, COALESCE(artifact_id, ''),
			status, COALESCE(decided_by, ''), COALESCE(decision_method, ''),
			COALESCE(decision_message, ''), created_at, timeout_at, decided_at
		 FROM approvals WHERE approval_id = ?`, approvalID,
	)
	var a ApprovalRow
	var decidedAt sql.NullTime
	err := row.Scan(&a.ApprovalID, &a.ConversationID, &a.MessageID,
		&a.OperationJSON, &a.DryRunJSON, &a.RiskJSON, &a.Summary, &a.ArtifactID,
		&a.Status, &a.DecidedBy, &a.DecisionMethod, &a.DecisionMessage,
		&a.CreatedAt, &a.TimeoutAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		a.DecidedAt = &decidedAt.Time
	}
	return &a, nil
}

// PendingApprovals returns the pending approvals for a conversation.
func (s *Store) PendingApprovals(conversationID string) ([]ApprovalRow, error) {
	rows, err := s.db.Query(
		`SELECT approval_id, conversation_id, COALESCE(message_id, ''),
			operation_json, dryrun_json, risk_json, summary, COALESCE(artifact_id, ''),
			status, COALESCE(decided_by, ''), COALESCE(decision_method, ''),
			COALESCE(decision_message, ''), created_at, timeout_at, decided_at
		 FROM approvals WHERE conversation_id = ? AND status = 'pending'
		 ORDER BY id`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRow
	for rows.Next() {
		var a ApprovalRow
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ApprovalID, &a.ConversationID, &a.MessageID,
			&a.OperationJSON, &a.DryRunJSON, &a.RiskJSON, &a.Summary, &a.ArtifactID,
			&a.Status, &a.DecidedBy, &a.DecisionMethod, &a.DecisionMessage,
			&a.CreatedAt, &a.TimeoutAt, &decidedAt); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ApprovedApprovals returns a conversation's approved requests, newest
// first.
func (s *Store) ApprovedApprovals(conversationID string) ([]ApprovalRow, error) {
	rows, err := s.db.Query(
		`SELECT approval_id, conversation_id, COALESCE(message_id, ''),
			operation_json, dryrun_json, risk_json, summary, COALESCE(artifact_id, ''),
			status, COALESCE(decided_by, ''), COALESCE(decision_method, ''),
			COALESCE(decision_message, ''), created_at, timeout_at, decided_at
		 FROM approvals WHERE conversation_id = ? AND status = 'approved'
		 ORDER BY id DESC`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRow
	for rows.Next() {
		var a ApprovalRow
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ApprovalID, &a.ConversationID, &a.MessageID,
			&a.OperationJSON, &a.DryRunJSON, &a.RiskJSON, &a.Summary, &a.ArtifactID,
			&a.Status, &a.DecidedBy, &a.DecisionMethod, &a.DecisionMessage,
			&a.CreatedAt, &a.TimeoutAt, &decidedAt); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListApprovals returns the most recent approvals across all conversations.
func (s *Store) ListApprovals(limit int) ([]ApprovalRow, error) {
	rows, err := s.db.Query(
		`SELECT approval_id, conversation_id, COALESCE(message_id, ''),
			operation_json, dryrun_json, risk_json, summary, COALESCE(artifact_id, ''),
			status, COALESCE(decided_by, ''), COALESCE(decision_method, ''),
			COALESCE(decision_message, ''), created_at, timeout_at, decided_at
		 FROM approvals ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRow
	for rows.Next() {
		var a ApprovalRow
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ApprovalID, &a.ConversationID, &a.MessageID,
			&a.OperationJSON, &a.DryRunJSON, &a.RiskJSON, &a.Summary, &a.ArtifactID,
			&a.Status, &a.DecidedBy, &a.DecisionMethod, &a.DecisionMessage,
			&a.CreatedAt, &a.TimeoutAt, &decidedAt); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TransitionApproval moves a pending approval to a terminal status, stamping
// the actor, method, message, and decision time. Returns ErrNotPending when
// the row already left pending (the optimistic concurrency guard).
func (s *Store) TransitionApproval(approvalID, status, actor, method, message string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE approvals SET status = ?, decided_by = ?, decision_method = ?,
			decision_message = ?, decided_at = ?
		 WHERE approval_id = ? AND status = 'pending'`,
		status, actor, method, message, at, approvalID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// TimeoutPendingApprovals marks every pending approval of a conversation as
// timed out, returning how many rows changed.
func (s *Store) TimeoutPendingApprovals(conversationID string, at time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE approvals SET status = 'timeout', decided_at = ?
		 WHERE conversation_id = ? AND status = 'pending'`,
		at, conversationID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// InsertArtifact persists oversized content for modal rendering.
func (s *Store) InsertArtifact(artifactID, kind, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO artifacts (artifact_id, kind, content) VALUES (?, ?, ?)`,
		artifactID, kind, content,
	)
	return err
}

// GetArtifact returns the content of an artifact, empty when missing.
func (s *Store) GetArtifact(artifactID string) (string, error) {
	var content string
	err := s.db.QueryRow(
		`SELECT content FROM artifacts WHERE artifact_id = ?`, artifactID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return content, err
}

// ---------------------------------------------------------------------------
// Audit records
// ---------------------------------------------------------------------------

// InsertAuditRecord persists one redacted per-turn audit record.
func (s *Store) InsertAuditRecord(row *AuditRow) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_records (audit_id, correlation_id, session_id, conversation_id, record_json)
		 VALUES (?, ?, ?, ?, ?)`,
		row.AuditID, row.CorrelationID, nullable(row.SessionID),
		nullable(row.ConversationID), row.RecordJSON,
	)
	return err
}

// ListAuditRecords returns the most recent audit records.
func (s *Store) ListAuditRecords(limit int) ([]AuditRow, error) {
	rows, err := s.db.Query(
		`SELECT audit_id, correlation_id, COALESCE(session_id, ''),
			COALESCE(conversation_id, ''), record_json, created_at
		 FROM audit_records ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.AuditID, &a.CorrelationID, &a.SessionID,
			&a.ConversationID, &a.RecordJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
