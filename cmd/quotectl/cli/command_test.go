package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studio-ops/quotation-engine/jobs"
)

type stubQueue struct {
	resynced []int64
	limits   []int
	stats    QueueStats
	err      error
}

func (s *stubQueue) TriggerResync(ctx context.Context, id int64) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.resynced = append(s.resynced, id)
	return &asynq.TaskInfo{ID: "t-1", Type: jobs.TaskPricingResync}, nil
}

func (s *stubQueue) TriggerDriftScan(ctx context.Context, limit int) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.limits = append(s.limits, limit)
	return &asynq.TaskInfo{ID: "t-2", Type: jobs.TaskDriftScan}, nil
}

func (s *stubQueue) InspectQueue(ctx context.Context) (QueueStats, error) {
	return s.stats, s.err
}

func runCommand(q jobQueue, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), q, CommandOptions{Args: args, Stdout: &stdout, Stderr: &stderr})
	return code, stdout.String(), stderr.String()
}

func TestResyncCommand(t *testing.T) {
	q := &stubQueue{}

	code, out, _ := runCommand(q, "resync", "--id", "42")
	require.Equal(t, 0, code)
	assert.Contains(t, out, jobs.TaskPricingResync)

	code, _, _ = runCommand(q, "resync", "7")
	require.Equal(t, 0, code)
	assert.Equal(t, []int64{42, 7}, q.resynced)
}

func TestResyncCommandRequiresID(t *testing.T) {
	code, _, errOut := runCommand(&stubQueue{}, "resync")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--id is required")
}

func TestDriftScanCommand(t *testing.T) {
	q := &stubQueue{}
	code, out, _ := runCommand(q, "drift-scan", "--limit", "50")
	require.Equal(t, 0, code)
	assert.Contains(t, out, jobs.TaskDriftScan)
	assert.Equal(t, []int{50}, q.limits)
}

func TestQueueCommandJSON(t *testing.T) {
	q := &stubQueue{stats: QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}}
	code, out, _ := runCommand(q, "queue", "--json")
	require.Equal(t, 0, code)

	var got QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, q.stats, got)
}

func TestCommandErrors(t *testing.T) {
	code, _, errOut := runCommand(&stubQueue{err: errors.New("redis down")}, "drift-scan")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "redis down")

	code, _, errOut = runCommand(&stubQueue{}, "purge")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "purge"`)

	code, _, _ = runCommand(&stubQueue{})
	assert.Equal(t, 2, code)
}
