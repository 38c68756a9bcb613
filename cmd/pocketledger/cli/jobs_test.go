package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/jobs"
)

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (stubInspector) Close() error { return nil }

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func TestStatsCommandJSON(t *testing.T) {
	cli := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueAudit: {Queue: jobs.QueueAudit, Pending: 4, Retry: 1},
	}}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := cli.StatsCommand(StatsOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, code, stderr.String())

	var out []QueueStats
	require.NoError(t, json.NewDecoder(stdout).Decode(&out))
	require.Len(t, out, 2)
	require.Equal(t, QueueStats{Queue: jobs.QueueAudit, Pending: 4, Retry: 1}, out[0])
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault}, out[1])
}

func TestStatsCommandHumanAndFailure(t *testing.T) {
	cli := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{}}}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, cli.StatsCommand(StatsOptions{Queues: []string{"audit"}, Stdout: stdout}))
	require.True(t, strings.HasPrefix(stdout.String(), "audit    pending=0"))

	failing := &JobsCLI{inspector: stubInspector{err: errors.New("connection refused")}}
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, failing.StatsCommand(StatsOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "connection refused")
}

func TestTriggerPrune(t *testing.T) {
	enq := &stubEnqueuer{}
	cli := &JobsCLI{enqueuer: enq}

	_, err := cli.TriggerPrune(context.Background(), 0)
	require.Error(t, err)

	info, err := cli.TriggerPrune(context.Background(), 90)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskAuditPrune, info.Type)
	require.Len(t, enq.tasks, 1)

	var payload jobs.AuditPrunePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, 90, payload.RetentionDays)
}
