//go:build linux

package procutil

import "syscall"

// The child is killed by the kernel when the app dies.
func setDeathSignal(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
