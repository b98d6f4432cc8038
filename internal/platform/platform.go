// Package platform detects the host OS flavour and filesystem quirks that
// change how terminals, the clipboard and config reload behave.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform

	// overridable in tests
	procVersionPath = "/proc/version"
	procMountsPath  = "/proc/mounts"
)

// Detect returns the current platform, caching the result
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detectPlatform(runtime.GOOS)
	})
	return detected
}

func detectPlatform(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return detectLinuxOrWSL()
	default:
		return PlatformUnknown
	}
}

func detectLinuxOrWSL() Platform {
	version, _ := os.ReadFile(procVersionPath)
	v := string(version)

	if os.Getenv("WSL_DISTRO_NAME") == "" && !strings.Contains(strings.ToLower(v), "microsoft") {
		return PlatformLinux
	}

	// WSL2 kernels report "microsoft-standard"; WSL1 reports "Microsoft".
	switch {
	case strings.Contains(v, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(v, "Microsoft"):
		return PlatformWSL1
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// IsWSL returns true if running in any WSL environment
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// DefaultShell returns the login shell for new tabs: $SHELL, then a
// platform fallback.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	return "/bin/sh"
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem
// where change notifications are unreliable (9p, nfs, cifs, sshfs), or ""
// when live config reload should work.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile(procMountsPath)
	if err != nil {
		return ""
	}
	return fsWarning(mountFsType(string(mounts), absPath))
}

// mountFsType finds the filesystem type of the longest mount point
// containing absPath in /proc/mounts format.
func mountFsType(mounts, absPath string) string {
	var matchedMount, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if !underMount(absPath, mp) {
			continue
		}
		if len(mp) > len(matchedMount) {
			matchedMount, fsType = mp, fields[2]
		}
	}
	return fsType
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}

func fsWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "Config on 9p mount (WSL2 Windows filesystem): live reload disabled. Restart to apply edits."
	case fsType == "nfs" || fsType == "nfs4":
		return "Config on NFS mount: live reload may miss edits. Restart to apply them."
	case fsType == "cifs" || fsType == "smbfs":
		return "Config on CIFS/SMB mount: live reload may miss edits. Restart to apply them."
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "Config on SSHFS mount: live reload disabled. Restart to apply edits."
	}
	return ""
}
