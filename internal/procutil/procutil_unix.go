//go:build unix

package procutil

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Prepare configures cmd to run in a new process group and replaces
// cmd.Cancel with a group kill.
func Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	setDeathSignal(cmd.SysProcAttr)
	cmd.Cancel = func() error {
		return KillGroup(cmd)
	}
}

// Start starts a prepared command.
func Start(cmd *exec.Cmd) error {
	return cmd.Start()
}

// KillGroup sends SIGKILL to the process group led by cmd. It returns
// os.ErrProcessDone when the group is already gone.
func KillGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
