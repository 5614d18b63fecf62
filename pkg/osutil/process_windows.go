//go:build windows

// Package osutil runs child processes in their own process group so a
// timed-out model CLI is stopped together with every tool it spawned.
package osutil

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay is defined for parity with unix; Windows kills
// immediately
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup starts the command in a new process group
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// SetProcessGroupKill terminates the process on context cancellation.
// Children may outlive it as Windows has no unix-style group signals.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
	cmd.WaitDelay = 2 * GracefulShutdownDelay
}
