package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/pocketledger/pocketledger/jobs"
)

// QueueInspector is the part of asynq.Inspector used by the CLI.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	enqueuer  jobs.TaskEnqueuer
	inspector QueueInspector
}

// NewJobsCLI initialises the CLI helpers for the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) *JobsCLI {
	client := jobs.NewClient(redisOpts)
	return &JobsCLI{
		client:    client,
		enqueuer:  client,
		inspector: asynq.NewInspector(redisOpts),
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerPrune enqueues an immediate audit prune.
func (c *JobsCLI) TriggerPrune(ctx context.Context, retentionDays int) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if retentionDays <= 0 {
		return nil, errors.New("jobs cli: retention days must be positive")
	}
	task, err := jobs.NewAuditPruneTask(retentionDays)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics for one queue. A queue that has never
// received a task reports zeros.
func (c *JobsCLI) InspectQueue(queue string) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: queue}
	info, err := c.inspector.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return stats, nil
		}
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// StatsOptions defines flags for the jobs stats command.
type StatsOptions struct {
	Queues     []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// StatsCommand prints queue statistics and returns the process exit code.
func (c *JobsCLI) StatsCommand(opts StatsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	queues := opts.Queues
	if len(queues) == 0 {
		queues = []string{jobs.QueueAudit, jobs.QueueDefault}
	}
	all := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		stats, err := c.InspectQueue(q)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %s: %v\n", q, err)
			return 1
		}
		all = append(all, stats)
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(all); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	for _, s := range all {
		_, _ = fmt.Fprintf(opts.Stdout, "%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return 0
}
