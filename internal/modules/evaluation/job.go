package evaluation

import (
	"strings"
	"time"

	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

// TaskType names evaluation jobs in the task status store.
const TaskType = "audio_evaluation"

// JobData is the queued payload of one audio evaluation.
type JobData struct {
	FileID         string            `json:"fileId"`
	TargetDialogue []ai.DialogueLine `json:"targetDialogue"`
	SourceLanguage string            `json:"sourceLanguage"`
	TargetLanguage string            `json:"targetLanguage"`
	SourceWords    []string          `json:"sourceWords"`
	TargetStyle    string            `json:"targetStyle,omitempty"`
	TargetAudience string            `json:"targetAudience,omitempty"`
	UserID         string            `json:"userId"`
	TrainerID      string            `json:"trainerId"`
}

// Validate checks the payload shape before anything is queued.
func (d *JobData) Validate() error {
	d.FileID = strings.TrimSpace(d.FileID)
	d.TrainerID = strings.TrimSpace(d.TrainerID)
	d.TargetStyle = strings.ToLower(strings.TrimSpace(d.TargetStyle))
	switch {
	case d.FileID == "":
		return apperr.Invalid("fileId", "is required")
	case d.TrainerID == "":
		return apperr.Invalid("trainerId", "is required")
	case d.UserID == "":
		return apperr.Invalid("userId", "is required")
	case strings.TrimSpace(d.SourceLanguage) == "":
		return apperr.Invalid("sourceLanguage", "is required")
	case strings.TrimSpace(d.TargetLanguage) == "":
		return apperr.Invalid("targetLanguage", "is required")
	case len(d.TargetDialogue) == 0:
		return apperr.Invalid("targetDialogue", "needs at least one line")
	}
	if d.TargetStyle != "" && d.TargetStyle != "formal" && d.TargetStyle != "informal" {
		return apperr.Invalid("targetStyle", `must be "formal" or "informal"`)
	}
	for _, line := range d.TargetDialogue {
		if strings.TrimSpace(line.Text) == "" {
			return apperr.Invalid("targetDialogue", "lines need text")
		}
	}
	if d.SourceWords == nil {
		d.SourceWords = []string{}
	}
	return nil
}

// DialogueText joins the dialogue lines the way results store them.
func (d JobData) DialogueText() string {
	texts := make([]string, len(d.TargetDialogue))
	for i, line := range d.TargetDialogue {
		texts[i] = line.Text
	}
	return strings.Join(texts, "\n")
}

// Status values of progress events.
type Status string

const (
	StatusEvaluating Status = "evaluating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProgressEvent is pushed to the job owner on every state transition.
type ProgressEvent struct {
	JobID     string        `json:"jobId"`
	Status    Status        `json:"status"`
	Data      *ProgressData `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type ProgressData struct {
	Transcript string               `json:"transcript,omitempty"`
	Report     *ai.EvaluationReport `json:"report,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// ResultData is stored in the trainer result row.
type ResultData struct {
	Transcript string               `json:"transcript"`
	Report     *ai.EvaluationReport `json:"report"`
}

// envelope is the queue message body.
type envelope struct {
	TaskID string  `json:"taskId"`
	Data   JobData `json:"data"`
}
