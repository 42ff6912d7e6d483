package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/blobstore"
	"github.com/vocalingo/core/internal/pkg/metrics"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// ProgressEventName is the socket event carrying ProgressEvent payloads.
const ProgressEventName = "evaluation:progress"

// Evaluator is the AI surface the pipeline needs.
type Evaluator interface {
	Check(ctx context.Context, userID string) error
	TranscribeAudio(ctx context.Context, audio []byte, mimeType, sourceLanguage, userID string) (string, error)
	EvaluateTranslation(ctx context.Context, in ai.EvaluationInput, userID string) (*ai.EvaluationReport, error)
}

// Trainers is the trainer store the pipeline persists into.
type Trainers interface {
	Get(ctx context.Context, userID, id string) (*models.VocabTrainer, error)
	SaveResult(ctx context.Context, result *models.VocabTrainerResult) (*models.VocabTrainerResult, error)
	SetStatus(ctx context.Context, userID, id string, to models.TrainerStatus) (*models.VocabTrainer, error)
	Vocabulary(ctx context.Context, trainer *models.VocabTrainer) ([]models.Vocabulary, error)
}

type MasteryRecorder interface {
	RecordAnswers(ctx context.Context, userID string, answers []mastery.Answer) ([]models.MasteryRecord, error)
}

// Notifier delivers progress events to the job owner.
type Notifier interface {
	Notify(ctx context.Context, userID string, event ProgressEvent) error
}

// StatusStore mirrors job state for polling clients.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, status taskqueue.TaskStatus, result interface{}, errMsg string) error
}

// Pipeline runs one audio evaluation end to end.
type Pipeline struct {
	blobs    blobstore.Store
	ai       Evaluator
	trainers Trainers
	mastery  MasteryRecorder
	notifier Notifier
	status   StatusStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(blobs blobstore.Store, evaluator Evaluator, trainers Trainers, m MasteryRecorder, notifier Notifier, status StatusStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		blobs:    blobs,
		ai:       evaluator,
		trainers: trainers,
		mastery:  m,
		notifier: notifier,
		status:   status,
		logger:   logger.Named("EvaluationPipeline"),
		now:      time.Now,
	}
}

// Process evaluates one job. It emits exactly one evaluating event, then
// either a completed or a failed event, and never retries internally.
func (p *Pipeline) Process(ctx context.Context, jobID string, data JobData) (err error) {
	started := p.now()
	log := p.logger.With(zap.String("job", jobID), zap.String("trainer", data.TrainerID), zap.String("user", data.UserID))

	p.setStatus(ctx, jobID, taskqueue.TaskEvaluating, nil, "")
	p.notify(ctx, data.UserID, ProgressEvent{JobID: jobID, Status: StatusEvaluating})

	defer func() {
		metrics.EvaluationDuration.Observe(p.now().Sub(started).Seconds())
		if err == nil {
			metrics.EvaluationJobs.WithLabelValues(string(StatusCompleted)).Inc()
			return
		}
		metrics.EvaluationJobs.WithLabelValues(string(StatusFailed)).Inc()
		msg := err.Error()
		log.Warn("evaluation failed", zap.Error(err))
		p.notify(ctx, data.UserID, ProgressEvent{JobID: jobID, Status: StatusFailed, Data: &ProgressData{Error: msg}})
		p.setStatus(ctx, jobID, taskqueue.TaskFailed, nil, msg)
	}()

	obj, err := p.blobs.Download(ctx, data.FileID)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	transcript, err := p.ai.TranscribeAudio(ctx, obj.Data, obj.ContentType, data.SourceLanguage, data.UserID)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	report, err := p.ai.EvaluateTranslation(ctx, ai.EvaluationInput{
		TargetDialogue: data.TargetDialogue,
		Transcript:     transcript,
		SourceLanguage: data.SourceLanguage,
		TargetLanguage: data.TargetLanguage,
		SourceWords:    data.SourceWords,
		TargetStyle:    data.TargetStyle,
		TargetAudience: data.TargetAudience,
	}, data.UserID)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	payload, err := json.Marshal(ResultData{Transcript: transcript, Report: report})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := p.trainers.SaveResult(ctx, &models.VocabTrainerResult{
		TrainerID:      data.TrainerID,
		UserID:         data.UserID,
		Status:         models.TrainerCompleted,
		UserSelected:   transcript,
		SystemSelected: data.DialogueText(),
		Data:           payload,
	}); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	p.notify(ctx, data.UserID, ProgressEvent{JobID: jobID, Status: StatusCompleted, Data: &ProgressData{Transcript: transcript, Report: report}})
	p.setStatus(ctx, jobID, taskqueue.TaskCompleted, ResultData{Transcript: transcript, Report: report}, "")
	log.Info("evaluation completed", zap.Float64("score", report.OverallScore))

	p.afterCompletion(ctx, log, data, transcript, report)
	return nil
}

// afterCompletion applies trainer and mastery side effects. Failures here
// are logged and never fail the job.
func (p *Pipeline) afterCompletion(ctx context.Context, log *zap.Logger, data JobData, transcript string, report *ai.EvaluationReport) {
	trainer, err := p.trainers.SetStatus(ctx, data.UserID, data.TrainerID, models.TrainerCompleted)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		trainer, err = p.trainers.Get(ctx, data.UserID, data.TrainerID)
	case err != nil:
		log.Warn("trainer status not updated", zap.Error(err))
		return
	}
	if err != nil {
		log.Warn("trainer not loaded", zap.Error(err))
		return
	}
	if p.mastery == nil || len(data.SourceWords) == 0 {
		return
	}
	vocabs, err := p.trainers.Vocabulary(ctx, trainer)
	if err != nil {
		log.Warn("trainer vocabulary not loaded", zap.Error(err))
		return
	}
	answers := masteryAnswers(data.SourceWords, vocabs, transcript, report)
	if len(answers) == 0 {
		return
	}
	if _, err := p.mastery.RecordAnswers(ctx, data.UserID, answers); err != nil {
		log.Warn("mastery not recorded", zap.Error(err))
	}
}

func (p *Pipeline) notify(ctx context.Context, userID string, event ProgressEvent) {
	if p.notifier == nil {
		return
	}
	event.Timestamp = p.now().UTC()
	if err := p.notifier.Notify(ctx, userID, event); err != nil {
		p.logger.Warn("progress event not delivered", zap.String("job", event.JobID), zap.String("status", string(event.Status)), zap.Error(err))
	}
}

func (p *Pipeline) setStatus(ctx context.Context, jobID string, status taskqueue.TaskStatus, result interface{}, errMsg string) {
	if p.status == nil {
		return
	}
	if err := p.status.UpdateStatus(ctx, jobID, status, result, errMsg); err != nil {
		p.logger.Warn("task status not updated", zap.String("job", jobID), zap.String("status", string(status)), zap.Error(err))
	}
}
