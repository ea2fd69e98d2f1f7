package handler_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/model"
)

// MockRunService answers with canned runs and serves artifacts from Dir.
type MockRunService struct {
	mu sync.Mutex

	ReturnRun  *model.Run
	ReturnRuns []model.Run
	ReturnErr  error
	Dir        string

	CapturedOwner  string
	CapturedCode   string
	CapturedID     string
	CapturedLimit  int
	CapturedOffset int
	Released       []string
}

func (m *MockRunService) Run(_ context.Context, owner, code string) (*model.Run, error) {
	m.CapturedOwner, m.CapturedCode = owner, code
	return m.ReturnRun, m.ReturnErr
}

func (m *MockRunService) Get(_ context.Context, owner, id string) (*model.Run, error) {
	m.CapturedOwner, m.CapturedID = owner, id
	return m.ReturnRun, m.ReturnErr
}

func (m *MockRunService) List(_ context.Context, owner string, limit, offset int) ([]model.Run, error) {
	m.CapturedOwner, m.CapturedLimit, m.CapturedOffset = owner, limit, offset
	return m.ReturnRuns, m.ReturnErr
}

func (m *MockRunService) OpenArtifact(_ context.Context, owner, path string) (*os.File, error) {
	m.CapturedOwner = owner
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	f, err := os.Open(filepath.Join(m.Dir, path))
	if err != nil {
		return nil, apperror.NotFound("file", path)
	}
	return f, nil
}

func (m *MockRunService) RunArtifact(ctx context.Context, owner, id string) (*os.File, error) {
	m.CapturedID = id
	if m.ReturnRun == nil || m.ReturnRun.FilePath == "" {
		return nil, apperror.NotFound("output file for run", id)
	}
	return m.OpenArtifact(ctx, owner, m.ReturnRun.FilePath)
}

func (m *MockRunService) Release(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = append(m.Released, path)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
