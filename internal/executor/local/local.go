// Package local runs submissions with a fresh interpreter in a child process.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sakif/csv-extractor/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

// Executor implements the executor.Executor interface with os/exec.
type Executor struct {
	config      Config
	interpreter string
	logger      *slog.Logger
}

// New resolves the interpreter once so a missing Python fails at startup,
// not on the first request.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	path, err := exec.LookPath(cfg.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("local: interpreter %q not found: %w", cfg.Interpreter, err)
	}
	return &Executor{
		config:      cfg,
		interpreter: path,
		logger:      logger,
	}, nil
}

// Execute writes the code to its own temp file, runs it and waits.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	script, err := e.writeScript(req.Code)
	if err != nil {
		return nil, err
	}
	defer e.removeScript(script)

	runCtx, cancel := executor.WithLimit(ctx, e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.interpreter, script)
	cmd.Dir = req.WorkDir
	cmd.Env = e.environ(req)

	stdout := &executor.CappedBuffer{Limit: e.config.MaxOutputBytes}
	stderr := &executor.CappedBuffer{Limit: e.config.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	isolate(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("local: starting interpreter: %w", err)
	}
	pid := cmd.Process.Pid

	if err := applyLimits(pid, e.config); err != nil {
		e.logger.Warn("resource limits not applied",
			slog.Int("pid", pid),
			slog.String("error", err.Error()),
		)
	}

	waitErr := cmd.Wait()
	if waitErr != nil && runCtx.Err() == nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("local: waiting for interpreter: %w", waitErr)
		}
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if stdout.Truncated() || stderr.Truncated() {
		e.logger.Warn("execution output truncated",
			slog.Int("pid", pid),
			slog.Int("limit", e.config.MaxOutputBytes),
		)
	}

	return executor.Finish(ctx, runCtx, e.config.Timeout, &executor.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: time.Since(start),
		PID:      pid,
	})
}

// writeScript persists code under a unique name ending in .py.
func (e *Executor) writeScript(code string) (string, error) {
	f, err := os.CreateTemp(e.config.TempDir, "submission-*.py")
	if err != nil {
		return "", fmt.Errorf("local: creating submission file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("local: writing submission file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("local: closing submission file: %w", err)
	}
	return path, nil
}

func (e *Executor) removeScript(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Error("failed to remove submission file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// environ builds the child's environment from scratch. Nothing from the
// server's own environment leaks through except PATH.
func (e *Executor) environ(req executor.ExecutionRequest) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"LANG=C.UTF-8",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
	}
	if req.WorkDir != "" {
		env = append(env,
			"HOME="+req.WorkDir,
			executor.OutputDirEnv+"="+req.WorkDir,
		)
	}
	env = append(env, executor.ThreadEnv...)
	return append(env, req.Env...)
}
