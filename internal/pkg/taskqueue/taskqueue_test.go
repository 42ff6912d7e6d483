package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

func newService(t *testing.T) *Service {
	rc, _ := redistest.New(t)
	return NewService(rc)
}

func TestLifecycle(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	task, created, err := s.Enqueue(ctx, "audio-evaluation", "u1", map[string]string{"trainerId": "t1"}, "t1")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, TaskQueued, task.Status)

	dup, created, err := s.Enqueue(ctx, "audio-evaluation", "u1", nil, "t1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, task.ID, dup.ID)

	require.NoError(t, s.UpdateStatus(ctx, task.ID, TaskEvaluating, nil, ""))
	require.NoError(t, s.UpdateStatus(ctx, task.ID, TaskCompleted, map[string]int{"overallScore": 90}, ""))

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, got.Status)
	assert.Equal(t, 1, got.Attempt)
	assert.JSONEq(t, `{"overallScore":90}`, string(got.Result))

	again, created, err := s.Enqueue(ctx, "audio-evaluation", "u1", nil, "t1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, task.ID, again.ID)
}

func TestGetMissing(t *testing.T) {
	s := newService(t)
	_, err := s.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAndDeleteFinished(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	old, _, err := s.Enqueue(ctx, "audio-evaluation", "u1", nil, "")
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, old.ID, TaskFailed, nil, "boom"))

	s.now = func() time.Time { return base.Add(10 * 24 * time.Hour) }
	recent, _, err := s.Enqueue(ctx, "audio-evaluation", "u1", nil, "")
	require.NoError(t, err)
	_, _, err = s.Enqueue(ctx, "audio-evaluation", "u2", nil, "")
	require.NoError(t, err)

	tasks, total, err := s.List(ctx, "u1", nil, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, recent.ID, tasks[0].ID)

	removed, err := s.DeleteFinished(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, total, err = s.List(ctx, "", nil, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}
