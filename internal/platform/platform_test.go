package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMatchesGOOS(t *testing.T) {
	p := Detect()
	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, PlatformMacOS, p)
	case "windows":
		assert.Equal(t, PlatformWindows, p)
	case "linux":
		assert.Contains(t, []Platform{PlatformLinux, PlatformWSL}, p)
	}
}

func TestDetectIsCached(t *testing.T) {
	assert.Equal(t, Detect(), Detect())
}

func TestPlatformString(t *testing.T) {
	assert.Equal(t, "macOS", PlatformMacOS.String())
	assert.Equal(t, "Linux", PlatformLinux.String())
	assert.Equal(t, "WSL", PlatformWSL.String())
	assert.Equal(t, "Unknown", PlatformUnknown.String())
}

func TestCheckFsnotifySupportLocalPath(t *testing.T) {
	// A tmpdir is on a local filesystem in CI; no warning expected
	if runtime.GOOS != "linux" {
		t.Skip("linux-only check")
	}
	assert.Equal(t, "", CheckFsnotifySupport(t.TempDir()))
}
