package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pocketledger/pocketledger/internal/jobs"
	"github.com/pocketledger/pocketledger/internal/shared"
)

// TaskEnqueuer is the part of asynq.Client used to submit tasks.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditEnqueuer implements shared.Auditor by handing entries to the worker.
type AuditEnqueuer struct {
	enqueuer TaskEnqueuer
	now      func() time.Time
}

// NewAuditEnqueuer wraps a task enqueuer.
func NewAuditEnqueuer(enqueuer TaskEnqueuer) *AuditEnqueuer {
	return &AuditEnqueuer{enqueuer: enqueuer, now: time.Now}
}

// Record stamps the entry with the mutation time and enqueues it.
func (a *AuditEnqueuer) Record(ctx context.Context, entry shared.AuditLog) error {
	if a == nil || a.enqueuer == nil {
		return errors.New("jobs: audit enqueuer not configured")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = a.now().UTC()
	}
	task, err := NewAuditRecordTask(entry)
	if err != nil {
		return fmt.Errorf("jobs: build audit task: %w", err)
	}
	if _, err := a.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs: enqueue audit task: %w", err)
	}
	return nil
}

var _ shared.Auditor = (*AuditEnqueuer)(nil)

// AuditRecordJob writes queued audit entries through the synchronous sink.
type AuditRecordJob struct {
	sink    shared.Auditor
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditRecordJob builds the consumer for TaskAuditRecord.
func NewAuditRecordJob(sink shared.Auditor, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecordJob{sink: sink, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditRecord tasks. Undecodable or invalid payloads are
// dropped; sink errors are returned so Asynq retries them.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.metrics.Drop(TaskAuditRecord, "decode")
		j.logger.Warn("audit task payload", slog.Any("error", err))
		return fmt.Errorf("decode audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Entry.Validate(); err != nil {
		j.metrics.Drop(TaskAuditRecord, "invalid")
		j.logger.Warn("audit task entry", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskAuditRecord)
	return tracker.End(j.sink.Record(ctx, payload.Entry))
}

// AuditPruner deletes audit entries older than a cutoff.
type AuditPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// AuditPruneJob applies the retention policy.
type AuditPruneJob struct {
	pruner  AuditPruner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewAuditPruneJob builds the consumer for TaskAuditPrune.
func NewAuditPruneJob(pruner AuditPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPruneJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPruneJob{pruner: pruner, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskAuditPrune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.metrics.Drop(TaskAuditPrune, "decode")
		return fmt.Errorf("decode prune payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RetentionDays <= 0 {
		j.metrics.Drop(TaskAuditPrune, "disabled")
		return nil
	}
	tracker := j.metrics.Track(TaskAuditPrune)
	cutoff := payload.Cutoff(j.now())
	removed, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	j.logger.Info("audit prune",
		slog.Int64("removed", removed),
		slog.Time("before", cutoff),
	)
	return tracker.End(nil)
}
