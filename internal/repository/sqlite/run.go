package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/model"
	"github.com/sakif/csv-extractor/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// Fails the build if *DB stops satisfying repository.RunRepository.
var _ repository.RunRepository = (*DB)(nil)

const runColumns = `id, owner_id, code, status, output, file_path, exit_code,
	error_kind, error_message, error_detail, duration_ms, created_at, updated_at`

// Create inserts a new run and fills in its ID and timestamps.
//
// xid IDs are 20 URL-safe characters and sort by creation time; the ID also
// names the run's output directory, so it must be safe as a path element.
func (db *DB) Create(ctx context.Context, run *model.Run) error {
	run.ID = xid.New().String()

	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	kind, message, detail := splitError(run.Error)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.OwnerID,
		run.Code,
		string(run.Status),
		run.Output,
		run.FilePath,
		run.ExitCode,
		kind, message, detail,
		run.Duration.Milliseconds(),
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating run: %w", err)
	}

	return nil
}

// GetByID retrieves a single run by its ID.
// sql.ErrNoRows is translated to apperror.NotFound so the handler can answer 404.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Run, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("run", id)
		}
		return nil, fmt.Errorf("sqlite: getting run %s: %w", id, err)
	}

	return run, nil
}

// List returns runs newest first, optionally for one owner.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if opts.OwnerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, opts.OwnerID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}

	return runs, nil
}

// Update writes the mutable fields of a run. Code, owner and created_at never change.
func (db *DB) Update(ctx context.Context, run *model.Run) error {
	run.UpdatedAt = time.Now()

	kind, message, detail := splitError(run.Error)
	result, err := db.conn.ExecContext(ctx,
		`UPDATE runs
		 SET status = ?, output = ?, file_path = ?, exit_code = ?,
		     error_kind = ?, error_message = ?, error_detail = ?,
		     duration_ms = ?, updated_at = ?
		 WHERE id = ?`,
		string(run.Status),
		run.Output,
		run.FilePath,
		run.ExitCode,
		kind, message, detail,
		run.Duration.Milliseconds(),
		run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating run %s: %w", run.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("run", run.ID)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.Run, error) {
	var (
		run                   model.Run
		status                string
		kind, message, detail string
		durationMS            int64
	)
	if err := s.Scan(
		&run.ID, &run.OwnerID, &run.Code, &status, &run.Output, &run.FilePath, &run.ExitCode,
		&kind, &message, &detail, &durationMS, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if kind != "" {
		run.Error = &model.RunError{Kind: kind, Message: message, Detail: detail}
	}
	return &run, nil
}

func splitError(e *model.RunError) (kind, message, detail string) {
	if e == nil {
		return "", "", ""
	}
	return e.Kind, e.Message, e.Detail
}
