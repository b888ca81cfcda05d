package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/models"
	"document-intelligence-platform/services"
)

const (
	TaskDocumentAnalyze = "document:analyze"
)

type DocumentAnalyzePayload struct {
	DocumentID string `json:"document_id"`
}

// NewDocumentAnalyzeTask builds an analysis task for one document. The
// task id is derived from the document id, so re-enqueueing a document
// already waiting in the queue is a no-op at the broker level.
func NewDocumentAnalyzeTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentAnalyzePayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentAnalyze,
		payload,
		asynq.TaskID("analyze:"+documentID),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor wires queue tasks to the orchestrator.
type TaskProcessor struct {
	orchestrator *services.Orchestrator
}

func NewTaskProcessor(orchestrator *services.Orchestrator) *TaskProcessor {
	return &TaskProcessor{orchestrator: orchestrator}
}

// ProcessDocument runs the analysis pipeline for one document. The
// orchestrator owns retries against the inference engine; queue-level
// retries only cover infrastructure faults, so domain outcomes (failed
// documents included) finish the task.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentAnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("processing document", "document_id", payload.DocumentID)

	status, err := p.orchestrator.Run(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			logger.Warn("document vanished before processing", "document_id", payload.DocumentID)
			return asynq.SkipRetry
		}
		return err
	}

	logger.Info("document processing finished", "document_id", payload.DocumentID, "status", status)
	return nil
}
