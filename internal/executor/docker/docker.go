package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/executor"
)

// Paths inside the container. The run directory is what gets copied back.
const (
	scriptPath = "/tmp/submission.py"
	runDir     = "/tmp/run"
)

var _ executor.Executor = (*Executor)(nil)

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New creates a new Docker Executor and initializes the connection.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Make sure the image is pulled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	logger.Info("docker image is ready")

	exec := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	exec.pool = NewPool(cli, cfg, logger)
	exec.pool.Start()

	return exec, nil
}

// Close shuts down the executor pool and docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Execute streams the code into a pre-warmed container, runs it there and
// copies the run directory back into req.WorkDir.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	containerID, err := e.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperror.Cancelled()
		}
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}

	// Retiring the container also kills a run that is still going.
	defer e.pool.Retire(containerID)

	runCtx, cancel := executor.WithLimit(ctx, e.config.Timeout)
	defer cancel()

	execResp, err := e.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Env:          e.environ(req),
		Cmd:          []string{"sh", "-c", e.launchScript()},
	})
	if err != nil {
		return nil, e.interrupted(ctx, runCtx, fmt.Errorf("failed to create exec: %w", err))
	}

	attachResp, err := e.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, e.interrupted(ctx, runCtx, fmt.Errorf("failed to attach to exec: %w", err))
	}
	defer attachResp.Close()

	// The launch script copies stdin to the script file; EOF starts the interpreter.
	if _, err := io.Copy(attachResp.Conn, strings.NewReader(req.Code)); err != nil {
		return nil, e.interrupted(ctx, runCtx, fmt.Errorf("failed to send code: %w", err))
	}
	if err := attachResp.CloseWrite(); err != nil {
		return nil, e.interrupted(ctx, runCtx, fmt.Errorf("failed to close stdin: %w", err))
	}

	stdout := &executor.CappedBuffer{Limit: e.config.MaxOutputBytes}
	stderr := &executor.CappedBuffer{Limit: e.config.MaxOutputBytes}

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		close(done)
	}()

	exitCode := -1
	select {
	case <-done:
		inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect exec: %w", err)
		}
		exitCode = inspectResp.ExitCode
	case <-runCtx.Done():
		e.logger.Warn("container execution interrupted",
			slog.String("id", containerID),
			slog.String("reason", runCtx.Err().Error()),
		)
		// Unblock StdCopy so the buffers are no longer written to.
		attachResp.Close()
		<-done
	}

	res, runErr := executor.Finish(ctx, runCtx, e.config.Timeout, &executor.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	})
	if runErr != nil || req.WorkDir == "" {
		return res, runErr
	}

	if err := e.copyOutputs(ctx, containerID, req.WorkDir); err != nil {
		return nil, err
	}
	return res, nil
}

// launchScript is the shell command run inside the container.
func (e *Executor) launchScript() string {
	return fmt.Sprintf("set -e; mkdir -p %[2]s; cat > %[1]s; cd %[2]s; exec %[3]s %[1]s",
		scriptPath, runDir, e.config.Interpreter)
}

func (e *Executor) environ(req executor.ExecutionRequest) []string {
	env := []string{
		"HOME=" + runDir,
		executor.OutputDirEnv + "=" + runDir,
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
	}
	env = append(env, executor.ThreadEnv...)
	return append(env, req.Env...)
}

// copyOutputs pulls the container's run directory into workDir.
func (e *Executor) copyOutputs(ctx context.Context, containerID, workDir string) error {
	reader, _, err := e.cli.CopyFromContainer(ctx, containerID, runDir)
	if err != nil {
		return fmt.Errorf("failed to copy outputs: %w", err)
	}
	defer reader.Close()

	if err := extractArchive(reader, workDir, e.config.MaxArtifactBytes); err != nil {
		return fmt.Errorf("failed to extract outputs: %w", err)
	}
	return nil
}

// interrupted reports a Docker API failure as a timeout or cancellation when
// that is what caused it.
func (e *Executor) interrupted(parent, run context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return apperror.Cancelled()
	case run.Err() != nil:
		return apperror.Timeout(e.config.Timeout)
	}
	return err
}
