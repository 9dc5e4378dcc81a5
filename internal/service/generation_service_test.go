package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/midistudio/api/internal/model"
	"github.com/midistudio/api/internal/status"
)

type memStore struct {
	mu   sync.Mutex
	docs map[string]*model.OrchestrationStatus
	sets int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*model.OrchestrationStatus)}
}

func (m *memStore) Set(_ context.Context, userID string, st *model.OrchestrationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.docs[userID] = &cp
	m.sets++
	return nil
}

func (m *memStore) Merge(_ context.Context, userID string, patch *model.StatusPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.docs[userID]
	if !ok {
		return status.ErrStatusNotFound
	}
	patch.Apply(st)
	return nil
}

func (m *memStore) Get(_ context.Context, userID string) (*model.OrchestrationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.docs[userID]
	if !ok {
		return nil, status.ErrStatusNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) Subscribe(context.Context, string) (<-chan *model.OrchestrationStatus, func(), error) {
	ch := make(chan *model.OrchestrationStatus)
	close(ch)
	return ch, func() {}, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestStart_WritesInitStatusAndEnqueues(t *testing.T) {
	store := newMemStore()
	queue := &fakeEnqueuer{}
	svc := NewGenerationService(store, queue)

	resp, err := svc.Start(context.Background(), &model.GenerationRequest{UserID: "u1", Key: "C"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected a runId")
	}
	if resp.Message == "" {
		t.Error("expected a message")
	}

	st, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected init status written: %v", err)
	}
	if st.Step != model.StepInit || st.Ready {
		t.Errorf("unexpected init document: %+v", st)
	}
	if st.RunID != resp.RunID {
		t.Errorf("expected status runId %s, got %s", resp.RunID, st.RunID)
	}

	if len(queue.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(queue.tasks))
	}
	task := queue.tasks[0]
	if task.Type() != TaskTypeGenerate {
		t.Errorf("unexpected task type %s", task.Type())
	}

	var msg model.TaskMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if msg.RunID != resp.RunID {
		t.Errorf("expected payload runId %s, got %s", resp.RunID, msg.RunID)
	}
	if msg.BaseName == "" {
		t.Error("expected a generated base name")
	}
	if msg.Request.Key != "C" || msg.Request.Scale != "major" {
		t.Errorf("expected defaulted request in payload, got %+v", msg.Request)
	}
}

func TestStart_OverwritesInFlightStatus(t *testing.T) {
	store := newMemStore()
	queue := &fakeEnqueuer{}
	svc := NewGenerationService(store, queue)

	first, err := svc.Start(context.Background(), &model.GenerationRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	second, err := svc.Start(context.Background(), &model.GenerationRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if first.RunID == second.RunID {
		t.Error("expected distinct run ids")
	}

	st, _ := store.Get(context.Background(), "u1")
	if st.RunID != second.RunID {
		t.Errorf("expected the second request to own the slot, got %s", st.RunID)
	}
	if store.sets != 2 {
		t.Errorf("expected 2 slot writes, got %d", store.sets)
	}
}

func TestGetStatus_Missing(t *testing.T) {
	svc := NewGenerationService(newMemStore(), &fakeEnqueuer{})

	if _, err := svc.GetStatus(context.Background(), "nobody"); err != status.ErrStatusNotFound {
		t.Errorf("expected ErrStatusNotFound, got %v", err)
	}
}
