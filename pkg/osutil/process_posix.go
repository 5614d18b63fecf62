//go:build unix

// Package osutil runs child processes in their own process group so a
// timed-out model CLI is stopped together with every tool it spawned.
package osutil

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay is how long a process group has to exit after
// SIGTERM before it is sent SIGKILL
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup makes the command the leader of a new process group
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SetProcessGroupKill makes context cancellation terminate the whole
// process group: SIGTERM first, SIGKILL after GracefulShutdownDelay. Must
// be called after SetProcessGroup and before cmd.Start().
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				return nil
			}
			return err
		}
		go func() {
			time.Sleep(GracefulShutdownDelay)
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}()
		return nil
	}
	// Output pipes held open by orphaned grandchildren must not block Wait
	cmd.WaitDelay = 2 * GracefulShutdownDelay
}
