package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/pocketledger/pocketledger/internal/jobs"
	"github.com/pocketledger/pocketledger/internal/shared"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type recordingSink struct {
	entries []shared.AuditLog
	err     error
}

func (s *recordingSink) Record(_ context.Context, entry shared.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type stubPruner struct {
	before  time.Time
	removed int64
}

func (p *stubPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.removed, nil
}

func TestAuditEnqueuerStampsAndEnqueues(t *testing.T) {
	capture := &captureEnqueuer{}
	enq := NewAuditEnqueuer(capture)
	fixed := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	enq.now = func() time.Time { return fixed }

	entry := shared.AuditLog{UserID: 7, Action: "expense.create", TargetType: "expense", TargetID: 3,
		Data: map[string]any{"title": "Lunch"}}
	require.NoError(t, enq.Record(context.Background(), entry))
	require.Len(t, capture.tasks, 1)

	task := capture.tasks[0]
	assert.Equal(t, TaskAuditRecord, task.Type())
	var payload AuditRecordPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "expense.create", payload.Entry.Action)
	assert.Equal(t, int64(7), payload.Entry.UserID)
	assert.True(t, fixed.Equal(payload.Entry.At))
	assert.Equal(t, "Lunch", payload.Entry.Data["title"])
}

func TestAuditEnqueuerRejectsInvalidEntries(t *testing.T) {
	capture := &captureEnqueuer{}
	enq := NewAuditEnqueuer(capture)
	require.Error(t, enq.Record(context.Background(), shared.AuditLog{TargetType: "expense"}))
	assert.Empty(t, capture.tasks)

	capture.err = errors.New("redis down")
	err := enq.Record(context.Background(), shared.AuditLog{Action: "a", TargetType: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	var nilEnq *AuditEnqueuer
	require.Error(t, nilEnq.Record(context.Background(), shared.AuditLog{Action: "a", TargetType: "b"}))
}

func TestAuditRecordJobWritesEntry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	sink := &recordingSink{}
	job := NewAuditRecordJob(sink, nil, metrics)

	task, err := NewAuditRecordTask(shared.AuditLog{UserID: 1, Action: "category.delete", TargetType: "category", TargetID: 9})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.entries, 1)
	assert.Equal(t, int64(9), sink.entries[0].TargetID)

	sink.err = errors.New("db down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	count, err := testutil.GatherAndCount(registry, "pocketledger_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAuditRecordJobSkipsBadPayloads(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	sink := &recordingSink{}
	job := NewAuditRecordJob(sink, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	body, _ := json.Marshal(AuditRecordPayload{Entry: shared.AuditLog{TargetType: "expense"}})
	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, body))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, sink.entries)

	expected := `
# HELP pocketledger_jobs_dropped_total Tasks discarded without retry grouped by job and reason.
# TYPE pocketledger_jobs_dropped_total counter
pocketledger_jobs_dropped_total{job="audit:record",reason="decode"} 1
pocketledger_jobs_dropped_total{job="audit:record",reason="invalid"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "pocketledger_jobs_dropped_total"))
}

func TestAuditPruneJobAppliesRetention(t *testing.T) {
	pruner := &stubPruner{removed: 4}
	job := NewAuditPruneJob(pruner, nil, nil)
	job.now = func() time.Time { return time.Date(2025, 3, 31, 2, 0, 0, 0, time.UTC) }

	task, err := NewAuditPruneTask(30)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC), pruner.before)

	pruner.before = time.Time{}
	disabled, err := NewAuditPruneTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), disabled))
	assert.True(t, pruner.before.IsZero())
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{"no inspector", nil, http.StatusOK, `{"queue":"audit","pending":0,"retry":0,"failed":0}`},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: "audit", Pending: 3, Retry: 1, Archived: 2}},
			http.StatusOK, `{"queue":"audit","pending":3,"retry":1,"failed":2}`},
		{"queue not created yet", stubInspector{err: asynq.ErrQueueNotFound},
			http.StatusOK, `{"queue":"audit","pending":0,"retry":0,"failed":0}`},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, rr.Body.String())
			}
		})
	}
}
