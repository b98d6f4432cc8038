//go:build unix && !linux

package procutil

import "syscall"

// No kernel-level parent-death signal outside Linux. Deadlines still kill
// the group through cmd.Cancel; an app killed with SIGKILL can leave the
// classifier running until it finishes on its own.
func setDeathSignal(*syscall.SysProcAttr) {}
