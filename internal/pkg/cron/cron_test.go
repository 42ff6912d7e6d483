package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcome(t *testing.T) {
	s := New(nil)
	calls := 0
	require.NoError(t, s.Register(Job{
		Name:     "cleanup_tasks",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			calls++
			return nil
		},
	}))
	require.NoError(t, s.Register(Job{
		Name:     "broken",
		Interval: time.Hour,
		Fn:       func(context.Context) error { return errors.New("nope") },
	}))

	require.NoError(t, s.Run(context.Background(), "cleanup_tasks"))
	require.NoError(t, s.Run(context.Background(), "broken"))
	require.Error(t, s.Run(context.Background(), "missing"))

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "broken", items[0].Name)
	assert.Equal(t, StatusReject, items[0].Status)
	assert.Equal(t, "nope", items[0].Message)
	assert.Equal(t, StatusFulfill, items[1].Status)
	assert.NotNil(t, items[1].LastRunAt)
	assert.Equal(t, 1, calls)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(nil)
	job := Job{Name: "a", Interval: time.Minute, Fn: func(context.Context) error { return nil }}
	require.NoError(t, s.Register(job))
	require.Error(t, s.Register(job))
}
