package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/mq"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// Tasks is the job status store.
type Tasks interface {
	StatusStore
	Enqueue(ctx context.Context, taskType, userID string, payload interface{}, dedupKey string) (*taskqueue.Task, bool, error)
	GetByID(ctx context.Context, id string) (*taskqueue.Task, error)
	List(ctx context.Context, userID string, status *taskqueue.TaskStatus, page, size int) ([]*taskqueue.Task, int64, error)
}

// Service accepts evaluation requests and hands them to the queue.
type Service struct {
	tasks    Tasks
	queue    mq.Queue
	trainers Trainers
	ai       Evaluator
	logger   *zap.Logger
}

func NewService(tasks Tasks, queue mq.Queue, trainers Trainers, evaluator Evaluator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tasks: tasks, queue: queue, trainers: trainers, ai: evaluator, logger: logger.Named("EvaluationService")}
}

// Enqueue validates a job and queues it. Validation, ownership and AI
// configuration problems are returned here; processing errors arrive later
// as progress events. A duplicate request for the same trainer and file
// returns the task already in flight.
func (s *Service) Enqueue(ctx context.Context, data JobData) (*taskqueue.Task, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	trainer, err := s.trainers.Get(ctx, data.UserID, data.TrainerID)
	if err != nil {
		return nil, err
	}
	if trainer.Status == models.TrainerCancelled {
		return nil, fmt.Errorf("%w: trainer %s is cancelled", apperr.ErrConflict, trainer.ID)
	}
	if err := s.ai.Check(ctx, data.UserID); err != nil {
		return nil, err
	}

	task, created, err := s.tasks.Enqueue(ctx, TaskType, data.UserID, data, data.TrainerID+":"+data.FileID)
	if err != nil {
		return nil, fmt.Errorf("record task: %w", err)
	}
	if !created {
		return task, nil
	}

	body, err := json.Marshal(envelope{TaskID: task.ID, Data: data})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Publish(ctx, mq.Message{ID: task.ID, Body: body, Attempt: 1}); err != nil {
		if uerr := s.tasks.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, nil, "not queued"); uerr != nil {
			s.logger.Warn("task status not updated", zap.String("job", task.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("publish job: %w", err)
	}
	s.logger.Info("evaluation queued", zap.String("job", task.ID), zap.String("trainer", data.TrainerID))
	return task, nil
}

// Status returns a job owned by userID.
func (s *Service) Status(ctx context.Context, userID, id string) (*taskqueue.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("%w: task %s", apperr.ErrNotFound, id)
	}
	return task, nil
}

// List returns the user's evaluation jobs, newest first.
func (s *Service) List(ctx context.Context, userID string, status *taskqueue.TaskStatus, page, size int) ([]*taskqueue.Task, int64, error) {
	return s.tasks.List(ctx, userID, status, page, size)
}
