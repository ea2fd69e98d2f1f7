package local

import (
	"time"
)

// Config holds the configuration for child-process execution.
type Config struct {
	// Interpreter is the Python binary, a name looked up in PATH or an absolute path.
	Interpreter string
	// TempDir is where submission files are written. Empty means os.TempDir().
	TempDir string
	// Timeout is the wall-clock limit per execution. Zero disables it.
	Timeout time.Duration
	// MemoryLimit caps the child's address space in bytes (Linux only). Zero disables it.
	MemoryLimit int64
	// CPUTime caps the child's CPU seconds (Linux only). Zero disables it.
	CPUTime time.Duration
	// MaxOutputBytes caps what is kept of each of stdout and stderr.
	MaxOutputBytes int
}

// DefaultConfig provides defaults sized for small pandas scripts.
func DefaultConfig() Config {
	return Config{
		Interpreter: "python3",
		Timeout:     30 * time.Second,
		// numpy's thread pools reserve a lot of address space up front
		MemoryLimit:    1024 * 1024 * 1024,
		CPUTime:        30 * time.Second,
		MaxOutputBytes: 1024 * 1024,
	}
}
