package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pocketledger/pocketledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit deliveries ahead of housekeeping work.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit entry produced by the API.
	TaskAuditRecord = "audit:record"
	// TaskAuditPrune removes audit entries past the retention window.
	TaskAuditPrune = "audit:prune"

	auditRecordMaxRetry = 10
)

// AuditRecordPayload wraps the entry handed over by the API process.
type AuditRecordPayload struct {
	Entry shared.AuditLog `json:"entry"`
}

// NewAuditRecordTask constructs an Asynq task for a single audit entry. Every
// task gets a fresh id so duplicate enqueues of the same entry stay distinct.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	body, err := json.Marshal(AuditRecordPayload{Entry: entry})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, body,
		asynq.Queue(QueueAudit),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(auditRecordMaxRetry),
	), nil
}

// AuditPrunePayload carries the retention applied by the prune job.
type AuditPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// Cutoff returns the oldest instant that survives the prune.
func (p AuditPrunePayload) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -p.RetentionDays)
}

// NewAuditPruneTask builds the scheduled retention task.
func NewAuditPruneTask(retentionDays int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, body, asynq.Queue(QueueDefault)), nil
}
