package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/executor"
	"github.com/sakif/csv-extractor/internal/model"
	"github.com/sakif/csv-extractor/internal/repository"
)

// mockRunRepo stores runs in memory and records every status it is asked to
// persist, per run.
type mockRunRepo struct {
	mu       sync.Mutex
	runs     map[string]*model.Run
	history  map[string][]model.RunStatus
	nextID   int
	lastOpts repository.ListOptions
}

func newMockRepo() *mockRunRepo {
	return &mockRunRepo{
		runs:    make(map[string]*model.Run),
		history: make(map[string][]model.RunStatus),
	}
}

func (m *mockRunRepo) Create(ctx context.Context, run *model.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	run.ID = fmt.Sprintf("run%d", m.nextID)
	stored := *run
	m.runs[run.ID] = &stored
	m.history[run.ID] = []model.RunStatus{run.Status}
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, apperror.NotFound("run", id)
	}
	result := *run
	return &result, nil
}

func (m *mockRunRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOpts = opts
	result := make([]model.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.OwnerID == "" || r.OwnerID == opts.OwnerID {
			result = append(result, *r)
		}
	}
	return result, nil
}

// Update fails on a cancelled context like a real database call would.
func (m *mockRunRepo) Update(ctx context.Context, run *model.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; !ok {
		return apperror.NotFound("run", run.ID)
	}
	stored := *run
	m.runs[run.ID] = &stored
	m.history[run.ID] = append(m.history[run.ID], run.Status)
	return nil
}

func (m *mockRunRepo) statuses(id string) []model.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RunStatus(nil), m.history[id]...)
}

func (m *mockRunRepo) stored(id string) model.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

// mockValidator accepts everything unless fn says otherwise.
type mockValidator struct {
	fn func(ctx context.Context, code string) error
}

func (m *mockValidator) Validate(ctx context.Context, code string) error {
	if m.fn == nil {
		return nil
	}
	return m.fn(ctx, code)
}

// rejects returns a validator that fails every submission with err.
func rejects(err error) *mockValidator {
	return &mockValidator{fn: func(context.Context, string) error { return err }}
}

// mockExecutor runs fn in place of a real interpreter.
type mockExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error)
}

func (m *mockExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.fn == nil {
		return &executor.ExecutionResult{}, nil
	}
	return m.fn(ctx, req)
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
