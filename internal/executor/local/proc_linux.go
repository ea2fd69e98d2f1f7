//go:build linux

package local

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// waitDelay bounds how long Wait keeps draining pipes after the kill, in
// case a grandchild inherited them.
const waitDelay = 2 * time.Second

// isolate puts the child in its own process group so a timeout or
// cancellation kills everything the script spawned, and ties its life to
// the server's.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = waitDelay
}

// applyLimits sets address-space and CPU rlimits on a started child. The
// child runs briefly before they apply.
func applyLimits(pid int, cfg Config) error {
	if cfg.MemoryLimit > 0 {
		lim := &unix.Rlimit{Cur: uint64(cfg.MemoryLimit), Max: uint64(cfg.MemoryLimit)}
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, lim, nil); err != nil {
			return fmt.Errorf("setting memory limit: %w", err)
		}
	}
	if cfg.CPUTime > 0 {
		secs := uint64(cfg.CPUTime / time.Second)
		if secs == 0 {
			secs = 1
		}
		lim := &unix.Rlimit{Cur: secs, Max: secs}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, lim, nil); err != nil {
			return fmt.Errorf("setting cpu limit: %w", err)
		}
	}
	return nil
}
