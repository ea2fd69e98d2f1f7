//go:build !linux

package local

import (
	"os/exec"
	"time"
)

const waitDelay = 2 * time.Second

// isolate only bounds the pipe drain; the default Cancel kills the
// interpreter but not processes it spawned.
func isolate(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}

// applyLimits is a no-op where prlimit is unavailable.
func applyLimits(int, Config) error {
	return nil
}
