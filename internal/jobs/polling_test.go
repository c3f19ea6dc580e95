package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"futsal_notifier/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingPoller struct {
	calls       atomic.Int32
	hadDeadline atomic.Bool
}

func (p *countingPoller) Poll(ctx context.Context) {
	_, ok := ctx.Deadline()
	p.hadDeadline.Store(ok)
	p.calls.Add(1)
}

func TestPollingJob_EmptyScheduleDisables(t *testing.T) {
	p := &countingPoller{}
	j := NewPollingJob(p, zap.NewNop(), &config.Config{})
	require.NoError(t, j.SetupAndStart())
	j.Stop()
	assert.Zero(t, p.calls.Load())
}

func TestPollingJob_InvalidSchedule(t *testing.T) {
	j := NewPollingJob(&countingPoller{}, zap.NewNop(), &config.Config{PollSchedule: "every now and then"})
	assert.Error(t, j.SetupAndStart())
}

func TestPollingJob_RunsOnSchedule(t *testing.T) {
	p := &countingPoller{}
	j := NewPollingJob(p, zap.NewNop(), &config.Config{PollSchedule: "@every 1s", APITimeout: time.Second})
	require.NoError(t, j.SetupAndStart())
	defer j.Stop()

	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.True(t, p.hadDeadline.Load())
}

func TestPollingJob_RunJobBoundsContext(t *testing.T) {
	p := &countingPoller{}
	j := NewPollingJob(p, zap.NewNop(), &config.Config{})
	j.runJob()
	assert.EqualValues(t, 1, p.calls.Load())
	assert.True(t, p.hadDeadline.Load())
}

func TestCronLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewCronLogger(zap.New(core))

	cl.Info("schedule", "entry", 1, "dangling")
	cl.Error(errors.New("boom"), "panic", "job", "poll")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ContextMap()["entry"])
	assert.Equal(t, "MISSING_VALUE", entries[0].ContextMap()["dangling"])
	assert.Equal(t, "poll", entries[1].ContextMap()["job"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
