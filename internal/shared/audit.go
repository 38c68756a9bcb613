package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pocketledger/pocketledger/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	UserID     int64          `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   int64          `json:"target_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Validate checks the required fields of an entry.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.TargetType == "" {
		return errors.New("audit log requires action and target_type")
	}
	return nil
}

// Auditor records mutation history. Implementations may write synchronously
// or hand the entry to a queue.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	q db.Querier
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{q: q}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.q == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	data := log.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("audit: encode data: %w", err)
	}
	var at *time.Time
	if !log.At.IsZero() {
		t := log.At.UTC()
		at = &t
	}
	_, err = l.q.Exec(ctx, `INSERT INTO audit_logs (user_id, action, target_type, target_id, data, created_at)
VALUES (NULLIF($1, 0), $2, $3, NULLIF($4, 0), $5, COALESCE($6, NOW()))`,
		log.UserID, log.Action, log.TargetType, log.TargetID, dataJSON, at)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Prune deletes entries created before the cutoff and reports how many went.
func (l *AuditLogger) Prune(ctx context.Context, before time.Time) (int64, error) {
	if l == nil || l.q == nil {
		return 0, errors.New("audit logger not initialised")
	}
	tag, err := l.q.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NopAuditor discards every entry.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, AuditLog) error { return nil }

var (
	_ Auditor = (*AuditLogger)(nil)
	_ Auditor = NopAuditor{}
)
