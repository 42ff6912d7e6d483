package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vocalingo/core/internal/pkg/apperr"
	redisc "github.com/vocalingo/core/internal/pkg/redis"
)

// TaskStatus mirrors the progress of an asynchronous job.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskEvaluating TaskStatus = "evaluating"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is the status record of one job, stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    TaskStatus      `json:"status"`
	Attempt   int             `json:"attempt"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedupKey,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

const (
	keyPrefix   = "vl:task:"
	keyIndex    = "vl:tasks:index"   // sorted set: score=created_at, member=task_id
	keyDedupSet = "vl:tasks:dedup:"  // hash: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour // tasks expire after 7 days
)

// Service stores task status records.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue records a new queued task. When dedupKey names a task that is
// still in flight, that task is returned instead and created is false.
func (s *Service) Enqueue(ctx context.Context, taskType, userID string, payload interface{}, dedupKey string) (task *Task, created bool, err error) {
	if dedupKey != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+taskType, dedupKey).Result()
		if err == nil && existing != "" {
			if t, err := s.GetByID(ctx, existing); err == nil && !t.Status.Terminal() {
				return t, false, nil
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	task = &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		UserID:    userID,
		Payload:   payloadBytes,
		Status:    TaskQueued,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	if dedupKey != "" {
		pipe.HSet(ctx, keyDedupSet+taskType, dedupKey, task.ID)
		pipe.Expire(ctx, keyDedupSet+taskType, taskTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateStatus sets a task's status and optional result/error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status
	task.UpdatedAt = s.now()
	task.Error = errMsg
	if status == TaskEvaluating {
		task.Attempt++
	}
	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return err
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	if status.Terminal() && task.DedupKey != "" {
		pipe.HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns tasks of a user (all users when userID is empty), newest first.
func (s *Service) List(ctx context.Context, userID string, status *TaskStatus, page, size int) ([]*Task, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if userID != "" && task.UserID != userID {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, task)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	total := int64(len(tasks))
	start := (page - 1) * size
	if start >= len(tasks) {
		return []*Task{}, total, nil
	}
	end := start + size
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

// DeleteFinished removes completed/failed tasks created before the cutoff and
// drops index entries whose record already expired. It returns how many
// tasks were removed.
func (s *Service) DeleteFinished(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if err != nil || !task.Status.Terminal() || !task.CreatedAt.Before(before) {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}
