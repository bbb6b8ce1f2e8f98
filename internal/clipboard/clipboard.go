// Package clipboard copies session output to the system clipboard,
// falling back to the OSC 52 escape sequence when no native tool exists.
package clipboard

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/asheshgoplani/termdeck/internal/platform"
)

// CopyResult describes a successful copy.
type CopyResult struct {
	Method    string // pbcopy, xclip, wl-copy, osc52, ...
	ByteSize  int
	LineCount int
}

// Copy puts text on the system clipboard. The fallback chain is native
// clipboard tool, then OSC 52 when allowOSC52 is set.
func Copy(text string, allowOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, fmt.Errorf("no content to copy")
	}

	result := &CopyResult{
		ByteSize:  len(text),
		LineCount: countLines(text),
	}

	method, err := copyNative(text)
	if err == nil {
		result.Method = method
		return result, nil
	}

	if allowOSC52 {
		if err := copyOSC52(text); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		result.Method = "osc52"
		return result, nil
	}

	return nil, fmt.Errorf("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
}

// copyNative attempts a platform-native clipboard command and returns
// the method name on success.
func copyNative(text string) (string, error) {
	switch p := platform.Detect(); p {
	case platform.PlatformMacOS:
		return "pbcopy", runClipCmd("pbcopy", nil, text)

	case platform.PlatformWSL:
		return "clip.exe", runClipCmd("clip.exe", nil, text)

	case platform.PlatformLinux:
		// Wayland takes priority over X11
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", runClipCmd(path, nil, text)
			}
		}
		if path, err := exec.LookPath("xclip"); err == nil {
			return "xclip", runClipCmd(path, []string{"-selection", "clipboard"}, text)
		}
		if path, err := exec.LookPath("xsel"); err == nil {
			return "xsel", runClipCmd(path, []string{"--clipboard", "--input"}, text)
		}
		return "", fmt.Errorf("no clipboard command found on Linux")

	default:
		return "", fmt.Errorf("unsupported platform: %s", p)
	}
}

func runClipCmd(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// copyOSC52 writes the OSC 52 sequence straight to the controlling
// terminal, wrapped in a DCS passthrough when running under tmux.
func copyOSC52(text string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, os.Getenv("TMUX") != "")

	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

func generateOSC52(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
