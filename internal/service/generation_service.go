package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/midistudio/api/internal/model"
	"github.com/midistudio/api/internal/status"
)

const (
	// TaskTypeGenerate is the queued pipeline task for one generation run.
	TaskTypeGenerate = "generate:pipeline"
	// TaskTypeSweep is the scheduled retention sweep task.
	TaskTypeSweep = "artifacts:sweep"

	// QueueGenerate is the asynq queue pipeline tasks are dispatched on.
	QueueGenerate = "generate"
	// QueueMaintenance carries the retention sweep.
	QueueMaintenance = "maintenance"
)

// Enqueuer is the subset of asynq.Client the intake path needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationService handles generation request intake: it writes the
// initial status slot, queues the pipeline task, and returns without
// waiting for the pipeline. The caller observes progress via the status
// slot only.
type GenerationService struct {
	store status.Store
	queue Enqueuer
}

func NewGenerationService(store status.Store, queue Enqueuer) *GenerationService {
	return &GenerationService{
		store: store,
		queue: queue,
	}
}

// Start accepts a validated generation request, overwrites the user's
// status slot with an init document, and enqueues the pipeline task.
// It never blocks on pipeline execution.
func (s *GenerationService) Start(ctx context.Context, req *model.GenerationRequest) (*model.GenerateResponse, error) {
	req.ApplyDefaults()

	runID := uuid.New().String()
	baseName := fmt.Sprintf("generation-%d", time.Now().UnixMilli())

	// Overwrites any prior slot for this user, including one from a run
	// still in flight. Last write wins.
	if err := s.store.Set(ctx, req.UserID, model.NewStatus(runID)); err != nil {
		return nil, fmt.Errorf("failed to write initial status: %w", err)
	}

	msg := model.TaskMessage{
		RunID:    runID,
		BaseName: baseName,
		Request:  *req,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	// MaxRetry(0): a failed run is terminal and reported through the
	// status slot, never requeued.
	_, err = s.queue.Enqueue(asynq.NewTask(TaskTypeGenerate, payload),
		asynq.Queue(QueueGenerate),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateResponse{
		Message: "Orchestration process started",
		RunID:   runID,
	}, nil
}

// GetStatus reads the user's current status slot.
func (s *GenerationService) GetStatus(ctx context.Context, userID string) (*model.OrchestrationStatus, error) {
	return s.store.Get(ctx, userID)
}
