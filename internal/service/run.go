// Package service contains the business logic layer of the application.
//
//	Handler (HTTP or CLI) → RunService → Validator, Executor, RunRepository
//
// RunService takes interfaces, never concrete backends, so tests drive it
// with in-memory fakes and the CLI reuses it without an HTTP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/executor"
	"github.com/sakif/csv-extractor/internal/model"
	"github.com/sakif/csv-extractor/internal/repository"
)

const (
	MaxCodeLength    = 100000 // ~100KB of code
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Validator decides whether code may be executed.
//
// A policy violation comes back as an *apperror.AppError wrapping ErrSyntax,
// ErrDisallowedImport or ErrDisallowedCall. Any other error means the check
// could not be completed; the run is rejected either way.
type Validator interface {
	Validate(ctx context.Context, code string) error
}

// RunService takes one submission through validation, execution and output
// discovery, recording every step on a model.Run.
type RunService struct {
	validator  Validator
	exec       executor.Executor
	repo       repository.RunRepository
	outputRoot string
	logger     *slog.Logger
}

// NewRunService creates a RunService. Each run gets its own directory under
// outputRoot, named after the run ID.
func NewRunService(v Validator, exec executor.Executor, repo repository.RunRepository, outputRoot string, logger *slog.Logger) (*RunService, error) {
	root, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	// Downloads are checked against the real location of every path, so the
	// root itself is kept in resolved form.
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}

	return &RunService{
		validator:  v,
		exec:       exec,
		repo:       repo,
		outputRoot: root,
		logger:     logger,
	}, nil
}

// OutputRoot is the absolute, symlink-free directory holding every run's
// output directory.
func (s *RunService) OutputRoot() string {
	return s.outputRoot
}

// Run validates and executes code on behalf of owner.
//
// The returned run is non-nil whenever it was persisted, including when the
// error is a policy violation or an execution failure, so callers can report
// its ID. The outcome is stored even if ctx is cancelled mid-run.
//
// Empty code is valid Python: it passes validation, runs, and succeeds with
// no output and no file.
func (s *RunService) Run(ctx context.Context, owner, code string) (*model.Run, error) {
	if len(code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	run := &model.Run{OwnerID: owner, Code: code, Status: model.RunCreated}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	logger := s.logger.With(slog.String("run_id", run.ID))
	persist := context.WithoutCancel(ctx)

	if err := s.advance(persist, run, model.RunValidating); err != nil {
		return run, err
	}

	if err := s.validator.Validate(ctx, code); err != nil {
		logger.Info("run rejected", slog.String("kind", apperror.Kind(err)), slog.String("error", err.Error()))
		return run, s.fail(persist, run, model.RunRejected, err)
	}

	if err := s.advance(persist, run, model.RunValidated); err != nil {
		return run, err
	}

	if err := s.advance(persist, run, model.RunExecuting); err != nil {
		return run, err
	}

	dir := filepath.Join(s.outputRoot, run.ID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return run, s.fail(persist, run, model.RunFailed, fmt.Errorf("creating run directory: %w", err))
	}

	res, err := s.exec.Execute(ctx, executor.ExecutionRequest{Code: code, WorkDir: dir})
	if res != nil {
		run.Output = res.Stdout
		run.ExitCode = res.ExitCode
		run.Duration = res.Duration
	}
	if err != nil {
		s.removeRunDir(dir)
		logger.Warn("run failed",
			slog.String("kind", apperror.Kind(err)),
			slog.Int("exit_code", run.ExitCode),
			slog.Duration("duration", run.Duration),
		)
		return run, s.fail(persist, run, model.RunFailed, err)
	}

	if file := discoverOutput(dir, run.Output); file != "" {
		rel, err := filepath.Rel(s.outputRoot, file)
		if err == nil {
			run.FilePath = filepath.ToSlash(rel)
		}
	}
	if run.FilePath == "" {
		s.removeRunDir(dir)
	}

	if err := s.advance(persist, run, model.RunSucceeded); err != nil {
		return run, err
	}

	logger.Info("run succeeded",
		slog.String("file_path", run.FilePath),
		slog.Duration("duration", run.Duration),
	)
	return run, nil
}

// Get retrieves a run. A non-empty owner hides runs that belong to someone else.
func (s *RunService) Get(ctx context.Context, owner, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}

	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && run.OwnerID != owner {
		return nil, apperror.NotFound("run", id)
	}
	return run, nil
}

// List retrieves runs newest first. limit is clamped to 1..100 (default 20).
func (s *RunService) List(ctx context.Context, owner string, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.repo.List(ctx, repository.ListOptions{
		Limit:   limit,
		Offset:  offset,
		OwnerID: owner,
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// advance moves run to next and persists it.
func (s *RunService) advance(ctx context.Context, run *model.Run, next model.RunStatus) error {
	if !run.Status.CanTransition(next) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", run.ID, run.Status, next)
	}
	run.Status = next
	if err := s.repo.Update(ctx, run); err != nil {
		s.logger.Error("failed to persist run",
			slog.String("run_id", run.ID),
			slog.String("status", string(next)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

// fail records cause on run, moves it to a terminal status and returns cause.
func (s *RunService) fail(ctx context.Context, run *model.Run, terminal model.RunStatus, cause error) error {
	run.Error = toRunError(cause)
	if err := s.advance(ctx, run, terminal); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (s *RunService) removeRunDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to remove run directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

func toRunError(err error) *model.RunError {
	re := &model.RunError{Kind: apperror.Kind(err), Message: "internal error"}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		re.Message = appErr.Message
		re.Detail = appErr.Detail
	}
	return re
}

// discoverOutput finds the file a run produced inside dir. The last non-empty
// line of stdout wins when it names a regular file in dir; otherwise the most
// recently written *.csv in dir is used. Returns "" when neither exists.
func discoverOutput(dir, stdout string) string {
	if line := lastLine(stdout); line != "" {
		candidate := line
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(dir, candidate)
		}
		if confined(dir, candidate) {
			return filepath.Clean(candidate)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return ""
	}

	var newest string
	var newestInfo fs.FileInfo
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = m, info
		}
	}
	return newest
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// confined reports whether path is a regular file strictly inside root once
// symlinks are resolved.
func confined(root, path string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	if !within(resolvedRoot, resolved) {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.Mode().IsRegular()
}

// within reports whether target lies below root. root itself is not within.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
