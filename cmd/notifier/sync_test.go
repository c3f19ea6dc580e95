package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"futsal_notifier/internal/api"
	"futsal_notifier/internal/archive"
	"futsal_notifier/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticFeed struct {
	res *api.FetchResult
	err error
}

func (f staticFeed) FetchNotifications(context.Context, int) (*api.FetchResult, error) {
	return f.res, f.err
}

// batchArchiver fails every record whose id is in fail.
type batchArchiver struct {
	batches [][]archive.Record
	fail    map[string]bool
}

func (a *batchArchiver) IndexBatch(_ context.Context, records []archive.Record) (int, error) {
	a.batches = append(a.batches, records)
	stored := 0
	for _, r := range records {
		if !a.fail[r.ID] {
			stored++
		}
	}
	if stored < len(records) {
		return stored, errors.New("partial failure")
	}
	return stored, nil
}

func (a *batchArchiver) Search(context.Context, string, string, int) ([]archive.Record, error) {
	return nil, nil
}

func (a *batchArchiver) Enabled() bool { return true }

func feedOf(n int) *api.FetchResult {
	res := &api.FetchResult{Success: true}
	for i := 0; i < n; i++ {
		res.Notifications = append(res.Notifications, domain.Notification{ID: fmt.Sprintf("n%d", i)})
	}
	return res
}

func TestRunArchiveSync_Batches(t *testing.T) {
	a := &batchArchiver{}
	err := runArchiveSync(context.Background(), staticFeed{res: feedOf(5)}, a, zap.NewNop(), "42", 50, 2)
	require.NoError(t, err)
	require.Len(t, a.batches, 3)
	assert.Len(t, a.batches[2], 1)
	assert.Equal(t, "42", a.batches[0][0].UserID)
	assert.Equal(t, archive.SourceREST, a.batches[0][0].Source)
}

func TestRunArchiveSync_CountsFailures(t *testing.T) {
	a := &batchArchiver{fail: map[string]bool{"n1": true}}
	err := runArchiveSync(context.Background(), staticFeed{res: feedOf(3)}, a, zap.NewNop(), "42", 50, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 notifications failed")
}

func TestRunArchiveSync_FetchError(t *testing.T) {
	err := runArchiveSync(context.Background(), staticFeed{err: errors.New("down")}, &batchArchiver{}, zap.NewNop(), "42", 50, 10)
	assert.ErrorContains(t, err, "down")
}

func TestRunArchiveSync_EmptyFeed(t *testing.T) {
	a := &batchArchiver{}
	require.NoError(t, runArchiveSync(context.Background(), staticFeed{res: feedOf(0)}, a, zap.NewNop(), "42", 50, 10))
	assert.Empty(t, a.batches)
}
