package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TaskCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), Config{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestTaskCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	task := &domain.Task{
		ID:              5,
		FileID:          42,
		TaskType:        domain.TaskTypeScale,
		Parameter:       50,
		Status:          domain.TaskStatusDone,
		ProcessedFileID: 77,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
	}
	require.NoError(t, c.Set(ctx, task))

	assert.True(t, mr.Exists("task:5"))
	assert.Equal(t, time.Minute, mr.TTL("task:5"))

	got, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.ProcessedFileID, got.ProcessedFileID)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
}

func TestTaskCache_MissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, &domain.Task{ID: 1, Status: domain.TaskStatusNew}))
	mr.FastForward(2 * time.Minute)

	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestTaskCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &domain.Task{ID: 3, Status: domain.TaskStatusNew}))
	require.NoError(t, c.Delete(ctx, 3))

	_, err := c.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestTaskCache_AddKeepsExistingEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	stored, err := c.Add(ctx, &domain.Task{ID: 9, Status: domain.TaskStatusNew})
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, time.Minute, mr.TTL("task:9"))

	require.NoError(t, c.Set(ctx, &domain.Task{ID: 9, Status: domain.TaskStatusDone, ProcessedFileID: 77}))

	stored, err = c.Add(ctx, &domain.Task{ID: 9, Status: domain.TaskStatusNew})
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := c.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, got.Status)
	assert.Equal(t, int64(77), got.ProcessedFileID)
}
