package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/csv-extractor/internal/config"
	"github.com/sakif/csv-extractor/internal/executor"
	"github.com/sakif/csv-extractor/internal/executor/docker"
	"github.com/sakif/csv-extractor/internal/executor/local"
	"github.com/sakif/csv-extractor/internal/logging"
	sqliteRepo "github.com/sakif/csv-extractor/internal/repository/sqlite"
	"github.com/sakif/csv-extractor/internal/service"
	"github.com/sakif/csv-extractor/internal/validator"
)

// app holds everything built from the configuration. close releases it in
// reverse order of construction.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runs   *service.RunService
	db     *sqliteRepo.DB
	closer func() error
}

func loadConfig(logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring logging: %w", err)
	}
	return cfg, logger, nil
}

func newValidator(cfg *config.Config) (*validator.Validator, error) {
	v, err := validator.New(
		validator.NewPolicy(cfg.Policy.AllowedImports, cfg.Policy.DeniedCalls),
		validator.Config{Interpreter: cfg.Policy.Interpreter, Timeout: cfg.Policy.CheckTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("starting validator: %w", err)
	}
	return v, nil
}

// newExecutor builds the configured backend and a function that releases it.
func newExecutor(cfg *config.Config, logger *slog.Logger) (executor.Executor, func() error, error) {
	ec := cfg.Executor

	if ec.Backend == config.BackendDocker {
		dc := docker.DefaultConfig()
		dc.Image = ec.Docker.Image
		dc.PoolSize = ec.Docker.PoolSize
		dc.CPULimit = ec.Docker.CPULimit
		dc.MemoryLimit = ec.MemoryLimitBytes()
		dc.Timeout = ec.Timeout
		dc.MaxOutputBytes = ec.MaxOutputBytes

		exec, err := docker.New(dc, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting docker executor: %w", err)
		}
		return exec, exec.Close, nil
	}

	exec, err := local.New(local.Config{
		Interpreter:    ec.Interpreter,
		TempDir:        ec.TempDir,
		Timeout:        ec.Timeout,
		MemoryLimit:    ec.MemoryLimitBytes(),
		CPUTime:        ec.CPUTime,
		MaxOutputBytes: ec.MaxOutputBytes,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("starting local executor: %w", err)
	}
	return exec, func() error { return nil }, nil
}

func newApp(logOut io.Writer) (*app, error) {
	cfg, logger, err := loadConfig(logOut)
	if err != nil {
		return nil, err
	}

	dbDir := filepath.Dir(cfg.Storage.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}
	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	v, err := newValidator(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	exec, closeExec, err := newExecutor(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	runs, err := service.NewRunService(v, exec, db, cfg.Output.Dir, logger)
	if err != nil {
		closeExec()
		db.Close()
		return nil, err
	}

	allowed, denied := v.Policy().Describe()
	logger.Info("extractor ready",
		slog.String("backend", cfg.Executor.Backend),
		slog.String("database", cfg.Storage.DBPath),
		slog.String("output_dir", runs.OutputRoot()),
		slog.Any("allowed_imports", allowed),
		slog.Any("denied_calls", denied),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		runs:   runs,
		db:     db,
		closer: closeExec,
	}, nil
}

func (a *app) close() {
	if err := a.closer(); err != nil {
		a.logger.Warn("failed to stop executor", slog.String("error", err.Error()))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", slog.String("error", err.Error()))
	}
}

// readSource reads a script from path, or from in when path is "-".
func readSource(path string, in io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}
