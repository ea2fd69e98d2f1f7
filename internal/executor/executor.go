// Package executor defines how validated submissions are run.
//
// Backends live in subpackages: local runs a fresh interpreter as a child
// process, docker runs it inside a single-use container. Both follow the same
// contract:
//
//   - exit status 0: the result is returned with Stdout trimmed and a nil error
//   - non-zero exit: the result is returned with apperror.ExecutionFailed carrying stderr
//   - wall-clock limit hit: the child is killed and apperror.Timeout is returned
//   - ctx cancelled: the child is killed and apperror.Cancelled is returned
//
// Nothing the backend creates for a call outlives it, except what the
// submitted code itself writes into ExecutionRequest.WorkDir.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/sakif/csv-extractor/internal/apperror"
)

// ExecutionRequest represents a request to execute Python code.
type ExecutionRequest struct {
	Code string `json:"code"`
	// WorkDir is the directory the code runs in and may write its output to.
	// It must exist and belong to this request only.
	WorkDir string `json:"-"`
	// Env holds extra KEY=VALUE pairs for the child, on top of the backend's
	// minimal environment.
	Env []string `json:"-"`
}

// ExecutionResult represents the output and status of the code execution.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	// PID of the interpreter process, when the backend runs one on this host.
	PID int `json:"-"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// OutputDirEnv names the variable pointing the child at its WorkDir.
const OutputDirEnv = "OUTPUT_DIR"

// ThreadEnv pins the BLAS and OpenMP pools numpy starts on import to one
// thread. OpenBLAS otherwise reserves address space for every core, which
// counts against a memory rlimit before any data is loaded.
var ThreadEnv = []string{
	"OPENBLAS_NUM_THREADS=1",
	"OMP_NUM_THREADS=1",
	"MKL_NUM_THREADS=1",
}

// Finish applies the contract to a run that has ended: it trims Stdout and
// picks the error. parent is the caller's context, run the one bounded by
// limit that the backend actually waited on.
func Finish(parent, run context.Context, limit time.Duration, res *ExecutionResult) (*ExecutionResult, error) {
	res.Stdout = strings.TrimSpace(res.Stdout)

	switch {
	case parent.Err() != nil:
		return res, apperror.Cancelled()
	case run.Err() != nil:
		return res, apperror.Timeout(limit)
	case res.ExitCode != 0:
		return res, apperror.ExecutionFailed(res.Stderr)
	}
	return res, nil
}

// WithLimit derives the context a backend waits on. A limit <= 0 disables
// the wall-clock bound but keeps the context cancellable.
func WithLimit(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}
