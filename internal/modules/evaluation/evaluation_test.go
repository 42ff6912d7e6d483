package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/database/dbtest"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/modules/exam"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/blobstore"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/mq"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"gorm.io/gorm"
)

type fakeAI struct {
	checkErr      error
	transcript    string
	transcribeErr error
	report        *ai.EvaluationReport
	evaluateErr   error
	gotMime       string
	gotLanguage   string
	gotInput      ai.EvaluationInput
}

func (f *fakeAI) Check(context.Context, string) error { return f.checkErr }

func (f *fakeAI) TranscribeAudio(_ context.Context, _ []byte, mimeType, sourceLanguage, _ string) (string, error) {
	f.gotMime, f.gotLanguage = mimeType, sourceLanguage
	return f.transcript, f.transcribeErr
}

func (f *fakeAI) EvaluateTranslation(_ context.Context, in ai.EvaluationInput, _ string) (*ai.EvaluationReport, error) {
	f.gotInput = in
	return f.report, f.evaluateErr
}

type recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
	users  []string
}

func (r *recorder) Notify(_ context.Context, userID string, e ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.users = append(r.users, userID)
	return nil
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	blobs    *blobstore.Memory
	ai       *fakeAI
	notes    *recorder
	tasks    *taskqueue.Service
	trainers *exam.Service
	pipeline *Pipeline
	trainer  *models.VocabTrainer
	vocabs   []models.Vocabulary
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	rc, _ := redistest.New(t)
	c := cache.New(rc)
	m := mastery.NewService(db, c, nil)
	trainers := exam.NewService(db, c, m, config.ExamConfig{}, nil)

	vocabs := []models.Vocabulary{
		{UserID: "u1", Source: "Hello", Target: "Hola"},
		{UserID: "u1", Source: "Goodbye", Target: "Adiós"},
	}
	require.NoError(t, db.Create(&vocabs).Error)
	trainer, err := trainers.Create(context.Background(), "u1", exam.CreateInput{
		QuestionType:  "audio_evaluation",
		VocabularyIDs: []string{vocabs[0].ID, vocabs[1].ID},
	})
	require.NoError(t, err)

	blobs := blobstore.NewMemory()
	require.NoError(t, blobs.Upload(context.Background(), "audio/1.webm", []byte("fake-audio"), "audio/webm"))

	f := &fixture{
		db:       db,
		blobs:    blobs,
		ai:       &fakeAI{transcript: "Hello", report: &ai.EvaluationReport{OverallScore: 92, Errors: []ai.EvaluationError{}, Advice: "Nice."}},
		notes:    &recorder{},
		tasks:    taskqueue.NewService(rc),
		trainers: trainers,
		trainer:  trainer,
		vocabs:   vocabs,
	}
	f.pipeline = NewPipeline(blobs, f.ai, trainers, m, f.notes, f.tasks, nil)
	return f
}

func (f *fixture) job() JobData {
	return JobData{
		FileID:         "audio/1.webm",
		TargetDialogue: []ai.DialogueLine{{Speaker: "A", Text: "Hello"}},
		SourceLanguage: "es",
		TargetLanguage: "en",
		SourceWords:    []string{"hola"},
		UserID:         "u1",
		TrainerID:      f.trainer.ID,
	}
}

func (f *fixture) enqueue(t *testing.T) *taskqueue.Task {
	t.Helper()
	task, created, err := f.tasks.Enqueue(context.Background(), TaskType, "u1", nil, "")
	require.NoError(t, err)
	require.True(t, created)
	return task
}

func TestProcessHelloEndToEnd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.enqueue(t)

	require.NoError(t, f.pipeline.Process(ctx, task.ID, f.job()))

	assert.Equal(t, []Status{StatusEvaluating, StatusCompleted}, f.notes.statuses())
	done := f.notes.events[1]
	assert.Equal(t, task.ID, done.JobID)
	require.NotNil(t, done.Data)
	assert.Equal(t, "Hello", done.Data.Transcript)
	require.NotNil(t, done.Data.Report)
	assert.Equal(t, 92.0, done.Data.Report.OverallScore)
	assert.False(t, done.Timestamp.IsZero())
	assert.Equal(t, []string{"u1", "u1"}, f.notes.users)

	assert.Equal(t, "audio/webm", f.ai.gotMime)
	assert.Equal(t, "es", f.ai.gotLanguage)
	assert.Equal(t, "Hello", f.ai.gotInput.Transcript)

	res, err := f.trainers.Result(ctx, "u1", f.trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCompleted, res.Status)
	assert.Equal(t, "Hello", res.UserSelected)
	assert.Equal(t, "Hello", res.SystemSelected)
	var stored ResultData
	require.NoError(t, json.Unmarshal(res.Data, &stored))
	assert.Equal(t, "Hello", stored.Transcript)
	require.NotNil(t, stored.Report)

	got, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCompleted, got.Status)
	assert.Equal(t, 1, got.Attempt)

	trainer, err := f.trainers.Get(ctx, "u1", f.trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCompleted, trainer.Status)

	var rec models.MasteryRecord
	require.NoError(t, f.db.First(&rec, "vocabulary_id = ?", f.vocabs[0].ID).Error)
	assert.Equal(t, 1, rec.CorrectCount)
	assert.Equal(t, 0, rec.IncorrectCount)
}

func TestProcessReevaluationKeepsOneResult(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Process(ctx, f.enqueue(t).ID, f.job()))
	f.ai.transcript = "Hello there"
	require.NoError(t, f.pipeline.Process(ctx, f.enqueue(t).ID, f.job()))

	var n int64
	require.NoError(t, f.db.Model(&models.VocabTrainerResult{}).Where("trainer_id = ?", f.trainer.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	res, err := f.trainers.Result(ctx, "u1", f.trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", res.UserSelected)
}

func TestProcessTranscriptionFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.enqueue(t)
	f.ai.transcribeErr = &ai.ProviderError{Kind: ai.KindUnauthorized, Provider: ai.ProviderOpenAI, Status: 401}

	err := f.pipeline.Process(ctx, task.ID, f.job())
	require.ErrorIs(t, err, ai.ErrUnauthorized)

	assert.Equal(t, []Status{StatusEvaluating, StatusFailed}, f.notes.statuses())
	failed := f.notes.events[1]
	require.NotNil(t, failed.Data)
	assert.NotEmpty(t, failed.Data.Error)
	assert.Nil(t, failed.Data.Report)

	got, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	_, err = f.trainers.Result(ctx, "u1", f.trainer.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProcessMissingAudio(t *testing.T) {
	f := setup(t)
	job := f.job()
	job.FileID = "audio/missing.webm"

	err := f.pipeline.Process(context.Background(), f.enqueue(t).ID, job)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []Status{StatusEvaluating, StatusFailed}, f.notes.statuses())
}

func TestMasteryAnswers(t *testing.T) {
	vocabs := []models.Vocabulary{
		{Source: "Good morning", Target: "Buenos días"},
		{Source: "Thanks", Target: "Gracias"},
		{Source: "Goodbye", Target: "Adiós"},
	}
	for i := range vocabs {
		vocabs[i].ID = vocabs[i].Source
	}
	report := &ai.EvaluationReport{Errors: []ai.EvaluationError{{Span: "goodbye", Type: "grammar"}}}

	got := masteryAnswers([]string{"BUENOS DÍAS", "gracias", "adiós", "unknown", ""}, vocabs, "Good mornin, and goodbye!", report)
	require.Len(t, got, 3)
	assert.Equal(t, mastery.Answer{VocabularyID: "Good morning", Correct: true}, got[0], "one-letter slip still counts")
	assert.Equal(t, mastery.Answer{VocabularyID: "Thanks", Correct: false}, got[1], "never said")
	assert.Equal(t, mastery.Answer{VocabularyID: "Goodbye", Correct: false}, got[2], "flagged by the evaluator")

	assert.Empty(t, masteryAnswers([]string{"hola"}, vocabs, "hola", nil))
}

func TestMasteryAnswersFlagsWholeWordsOnly(t *testing.T) {
	vocabs := []models.Vocabulary{{Source: "dinner", Target: "cena"}, {Source: "the city", Target: "la ciudad"}}
	vocabs[0].ID, vocabs[1].ID = "v1", "v2"
	transcript := "we had dinner in the city"

	inside := &ai.EvaluationReport{Errors: []ai.EvaluationError{{Span: "in", Type: "grammar"}}}
	got := masteryAnswers([]string{"dinner"}, vocabs, transcript, inside)
	assert.Equal(t, []mastery.Answer{{VocabularyID: "v1", Correct: true}}, got)

	covering := &ai.EvaluationReport{Errors: []ai.EvaluationError{{Span: "Dinner in", Type: "grammar"}}}
	got = masteryAnswers([]string{"dinner"}, vocabs, transcript, covering)
	assert.Equal(t, []mastery.Answer{{VocabularyID: "v1", Correct: false}}, got)

	partial := &ai.EvaluationReport{Errors: []ai.EvaluationError{{Span: "city", Type: "word_choice"}}}
	got = masteryAnswers([]string{"the city"}, vocabs, transcript, partial)
	assert.Equal(t, []mastery.Answer{{VocabularyID: "v2", Correct: false}}, got)
}

func TestJobValidate(t *testing.T) {
	f := setup(t)
	job := f.job()
	require.NoError(t, job.Validate())

	bad := job
	bad.FileID = " "
	require.ErrorIs(t, bad.Validate(), apperr.ErrValidation)

	bad = job
	bad.TargetDialogue = nil
	require.ErrorIs(t, bad.Validate(), apperr.ErrValidation)

	bad = job
	bad.TargetStyle = "casual"
	require.ErrorIs(t, bad.Validate(), apperr.ErrValidation)

	multi := job
	multi.TargetDialogue = []ai.DialogueLine{{Speaker: "A", Text: "Hi"}, {Speaker: "B", Text: "Hey"}}
	assert.Equal(t, "Hi\nHey", multi.DialogueText())
}

func TestServiceEnqueue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	queue := mq.NewMemory(8)
	svc := NewService(f.tasks, queue, f.trainers, f.ai, nil)

	task, err := svc.Enqueue(ctx, f.job())
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskQueued, task.Status)
	assert.Equal(t, 1, queue.Pending())

	again, err := svc.Enqueue(ctx, f.job())
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID, "same trainer and file dedupes")
	assert.Equal(t, 1, queue.Pending())

	other := f.job()
	other.UserID = "u2"
	_, err = svc.Enqueue(ctx, other)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	f.ai.checkErr = &ai.ConfigError{Provider: ai.ProviderAnthropic, Reason: "audio transcription is not supported"}
	next := f.job()
	next.FileID = "audio/2.webm"
	_, err = svc.Enqueue(ctx, next)
	require.ErrorIs(t, err, ai.ErrConfiguration)
	assert.Equal(t, 1, queue.Pending(), "configuration errors never reach the queue")

	got, err := svc.Status(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	_, err = svc.Status(ctx, "u2", task.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

type scriptedProcessor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (p *scriptedProcessor) Process(context.Context, string, JobData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func (p *scriptedProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func runWorker(t *testing.T, queue *mq.Memory, proc Processor, maxAttempts int) {
	t.Helper()
	w := NewWorker(queue, proc, nil, 2, maxAttempts, nil)
	w.backoff = func(int) time.Duration { return 0 }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func publishJob(t *testing.T, queue *mq.Memory) {
	t.Helper()
	body, err := json.Marshal(envelope{TaskID: "task-1", Data: JobData{UserID: "u1"}})
	require.NoError(t, err)
	require.NoError(t, queue.Publish(context.Background(), mq.Message{ID: "task-1", Body: body}))
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	queue := mq.NewMemory(8)
	proc := &scriptedProcessor{errs: []error{&ai.ProviderError{Kind: ai.KindRateLimited, Status: 429}}}
	runWorker(t, queue, proc, 3)
	publishJob(t, queue)

	require.Eventually(t, func() bool { return len(queue.Acked()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, proc.count())
	attempts := []int{}
	for _, m := range queue.Acked() {
		attempts = append(attempts, m.Attempt)
	}
	assert.ElementsMatch(t, []int{1, 2}, attempts)
	assert.Empty(t, queue.DeadLettered())
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	queue := mq.NewMemory(8)
	transient := errors.New("connection reset")
	proc := &scriptedProcessor{errs: []error{transient, transient, transient}}
	runWorker(t, queue, proc, 2)
	publishJob(t, queue)

	require.Eventually(t, func() bool { return len(queue.DeadLettered()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, proc.count())
	assert.Equal(t, 2, queue.DeadLettered()[0].Attempt)
}

func TestWorkerDeadLettersPermanentFailures(t *testing.T) {
	queue := mq.NewMemory(8)
	proc := &scriptedProcessor{errs: []error{&ai.ProviderError{Kind: ai.KindUnauthorized, Status: 401}}}
	runWorker(t, queue, proc, 5)
	publishJob(t, queue)
	require.NoError(t, queue.Publish(context.Background(), mq.Message{Body: []byte("not json")}))

	require.Eventually(t, func() bool { return len(queue.DeadLettered()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, proc.count(), "undecodable message never reaches the pipeline")
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("boom")))
	assert.True(t, retryable(&ai.ProviderError{Kind: ai.KindUpstream}))
	assert.False(t, retryable(&ai.ProviderError{Kind: ai.KindQuotaExhausted}))
	assert.False(t, retryable(&ai.ConfigError{Reason: "no key"}))
	assert.False(t, retryable(apperr.Invalid("fileId", "is required")))
	assert.False(t, retryable(apperr.ErrNotFound))
}
