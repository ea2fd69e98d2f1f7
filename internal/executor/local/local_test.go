package local_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/executor"
	"github.com/sakif/csv-extractor/internal/executor/local"
)

// newTestExecutor skips when no python3 is installed, like the docker tests
// skip without a daemon.
func newTestExecutor(t *testing.T, tune func(*local.Config)) (*local.Executor, string) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	cfg := local.DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.Timeout = 10 * time.Second
	if tune != nil {
		tune(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	e, err := local.New(cfg, logger)
	require.NoError(t, err)
	return e, cfg.TempDir
}

// leftoverScripts lists submission files still present in dir.
func leftoverScripts(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "submission-*.py"))
	require.NoError(t, err)
	return matches
}

func TestNew_MissingInterpreter(t *testing.T) {
	cfg := local.DefaultConfig()
	cfg.Interpreter = "definitely-not-a-python-binary"

	_, err := local.New(cfg, slog.Default())
	assert.Error(t, err)
}

func TestExecute_Success(t *testing.T) {
	e, tmp := newTestExecutor(t, nil)

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    `print("hello")`,
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.Greater(t, res.Duration, time.Duration(0))
	assert.Empty(t, leftoverScripts(t, tmp))
}

func TestExecute_NonZeroExit(t *testing.T) {
	e, tmp := newTestExecutor(t, nil)

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "import sys\nsys.stderr.write('boom')\nsys.exit(3)\n",
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrExecution))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "boom", appErr.Detail)
	assert.Equal(t, 3, res.ExitCode)
	assert.Empty(t, leftoverScripts(t, tmp))
}

func TestExecute_PythonException(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	_, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "raise ValueError('bad column')\n",
		WorkDir: t.TempDir(),
	})

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, apperror.ErrExecution))
	assert.Contains(t, appErr.Detail, "ValueError: bad column")
}

func TestExecute_Timeout(t *testing.T) {
	e, tmp := newTestExecutor(t, func(c *local.Config) {
		c.Timeout = 500 * time.Millisecond
	})

	start := time.Now()
	_, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "while True:\n    pass\n",
		WorkDir: t.TempDir(),
	})

	assert.True(t, errors.Is(err, apperror.ErrTimeout), "got %v", err)
	assert.False(t, errors.Is(err, apperror.ErrExecution))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, leftoverScripts(t, tmp))
}

func TestExecute_Cancelled(t *testing.T) {
	e, tmp := newTestExecutor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	_, err := e.Execute(ctx, executor.ExecutionRequest{
		Code:    "import time\ntime.sleep(30)\n",
		WorkDir: t.TempDir(),
	})

	assert.True(t, errors.Is(err, apperror.ErrCancelled), "got %v", err)
	assert.Empty(t, leftoverScripts(t, tmp))
}

func TestExecute_RunsInWorkDir(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	workDir := t.TempDir()

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code: strings.Join([]string{
			"import os",
			"with open('output.csv', 'w') as fh:",
			"    fh.write('a,b\\n1,2\\n')",
			"print(os.environ['OUTPUT_DIR'])",
		}, "\n"),
		WorkDir: workDir,
	})
	require.NoError(t, err)

	assert.Equal(t, workDir, res.Stdout)
	data, err := os.ReadFile(filepath.Join(workDir, "output.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestExecute_ScrubsEnvironment(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	t.Setenv("EXTRACTOR_AUTH_JWT_SECRET", "do-not-leak")

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "import os\nprint(os.environ.get('EXTRACTOR_AUTH_JWT_SECRET'))\nprint(os.environ.get('RUN_ID'))\n",
		WorkDir: t.TempDir(),
		Env:     []string{"RUN_ID=abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "None\nabc", res.Stdout)
}

func TestExecute_SingleThreadedNumerics(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	t.Setenv("OPENBLAS_NUM_THREADS", "64")

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "import os\nfor k in ('OPENBLAS_NUM_THREADS', 'OMP_NUM_THREADS', 'MKL_NUM_THREADS'):\n    print(os.environ.get(k))\n",
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "1\n1\n1", res.Stdout)
}

func TestExecute_CapsOutput(t *testing.T) {
	e, _ := newTestExecutor(t, func(c *local.Config) {
		c.MaxOutputBytes = 10
	})

	res, err := e.Execute(context.Background(), executor.ExecutionRequest{
		Code:    "print('x' * 1000)\n",
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10), res.Stdout)
}

func TestExecute_ConcurrentRunsAreIndependent(t *testing.T) {
	e, tmp := newTestExecutor(t, nil)

	// Each script reports its own file and whether the other's is visible to it.
	var results [2]*executor.ExecutionResult
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := e.Execute(context.Background(), executor.ExecutionRequest{
				Code:    "import time\nprint(__file__)\ntime.sleep(0.3)\n",
				WorkDir: t.TempDir(),
			})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.NotEqual(t, results[0].Stdout, results[1].Stdout)
	assert.NotEqual(t, results[0].PID, results[1].PID)
	for _, res := range results {
		assert.Equal(t, tmp, filepath.Dir(res.Stdout))
		assert.True(t, strings.HasSuffix(res.Stdout, ".py"))
		_, err := os.Stat(res.Stdout)
		assert.True(t, os.IsNotExist(err), "submission file %s should be gone", res.Stdout)
	}
}
