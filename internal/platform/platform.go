// Package platform detects the host environment for clipboard and file
// watching decisions.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform is the detected host platform.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL     Platform = "wsl"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectedPlatform Platform
	detectionDone    bool
)

// Detect returns the current platform, caching the result.
func Detect() Platform {
	if detectionDone {
		return detectedPlatform
	}
	detectedPlatform = detectPlatform()
	detectionDone = true
	return detectedPlatform
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		if isWSL() {
			return PlatformWSL
		}
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

func isWSL() bool {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return true
	}
	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(procVersion)), "microsoft")
}

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL:
		return "WSL"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport reports a warning when path sits on a filesystem
// where inotify events are unreliable (9p, NFS, CIFS, SSHFS), or "" when
// watching should work. Plan file tracking degrades silently on those
// mounts otherwise.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	// Longest mountpoint prefix wins
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(string(mounts), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if strings.HasPrefix(absPath, mountPoint) && len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fsType
		}
	}

	switch {
	case matchedFsType == "9p":
		return "path on 9p mount (WSL Windows filesystem): file watching is unreliable"
	case matchedFsType == "nfs" || matchedFsType == "nfs4":
		return "path on NFS mount: file watching may be unreliable"
	case matchedFsType == "cifs" || matchedFsType == "smbfs":
		return "path on CIFS/SMB mount: file watching may be unreliable"
	case strings.HasPrefix(matchedFsType, "fuse.sshfs"):
		return "path on SSHFS mount: file watching is unreliable"
	}
	return ""
}
