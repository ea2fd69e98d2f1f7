package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/csv-extractor/internal/apperror"
)

// OpenArtifact opens a generated file for download. path is either relative
// to the output root (a run's FilePath) or an absolute path inside it. When
// owner is set, the file must belong to one of owner's runs.
func (s *RunService) OpenArtifact(ctx context.Context, owner, path string) (*os.File, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if owner != "" {
		if _, err := s.Get(ctx, owner, runIDOf(s.outputRoot, full)); err != nil {
			return nil, apperror.NotFound("file", path)
		}
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("file", path)
		}
		return nil, err
	}
	return f, nil
}

// RunArtifact opens the file recorded on a run.
func (s *RunService) RunArtifact(ctx context.Context, owner, id string) (*os.File, error) {
	run, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if run.FilePath == "" {
		return nil, apperror.NotFound("output file for run", id)
	}
	return s.OpenArtifact(ctx, owner, run.FilePath)
}

// Release deletes a downloaded file and its run directory once that is empty.
func (s *RunService) Release(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// Fails harmlessly while the directory still holds other files.
	for dir := filepath.Dir(full); dir != s.outputRoot && within(s.outputRoot, dir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// resolve maps path to a regular file strictly inside the output root and
// returns its real location. Every symlink along the path is followed before
// the check, so a linked directory inside a run cannot lead outside the root.
// Callers must use the returned path, never the one they passed in.
func (s *RunService) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", apperror.ValidationFailed("path", "path is required")
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.outputRoot, filepath.FromSlash(full))
	}
	full = filepath.Clean(full)
	if !within(s.outputRoot, full) {
		return "", apperror.Forbidden("path is outside the output directory")
	}

	// The directory is checked first so a missing file behind a link that
	// leaves the root is still forbidden, not reported as absent.
	dir, err := filepath.EvalSymlinks(filepath.Dir(full))
	if err != nil {
		if missing(err) {
			return "", apperror.NotFound("file", path)
		}
		return "", err
	}
	if dir != s.outputRoot && !within(s.outputRoot, dir) {
		return "", apperror.Forbidden("path is outside the output directory")
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if missing(err) {
			return "", apperror.NotFound("file", path)
		}
		return "", err
	}
	if !within(s.outputRoot, resolved) {
		return "", apperror.Forbidden("path is outside the output directory")
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperror.NotFound("file", path)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", apperror.NotFound("file", path)
	}
	return resolved, nil
}

// missing reports whether a lookup failed because the path does not exist.
// ENOTDIR covers a file used as a directory, e.g. "run/output.csv/x".
func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// runIDOf returns the first path element of full below root, which is the
// run ID that owns it.
func runIDOf(root, full string) string {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return ""
	}
	id, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return id
}
