package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Image is the Docker image to use for execution. It must ship the
	// libraries the validator allows (pandas, numpy).
	Image string
	// Interpreter is the Python binary inside the image.
	Interpreter string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit caps processes inside the container.
	PidsLimit int64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
	// MaxOutputBytes caps what is kept of each of stdout and stderr.
	MaxOutputBytes int
	// MaxArtifactBytes caps each file copied back out of the container.
	MaxArtifactBytes int64
}

// DefaultConfig provides sensible defaults for a Python sandbox.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-slim",
		Interpreter: "python",
		// 512 MB memory limit
		MemoryLimit: 512 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit:         0.5,
		PidsLimit:        64,
		Timeout:          30 * time.Second,
		PoolSize:         3,
		MaxOutputBytes:   1024 * 1024,
		MaxArtifactBytes: 64 * 1024 * 1024,
	}
}
