package render

import (
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
)

// DefaultScrollback is the line limit of the logical buffer.
const DefaultScrollback = 10000

// ansiRegex matches CSI escape sequences. The viewport shows plain text;
// full escape interpretation belongs to a terminal emulator, not here.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// Viewport adapts a bubbles viewport to the render Port. It maintains the
// logical buffer (a scrollback-limited line sequence) and the widget's
// scroll geometry. The two are reconciled lazily: appends during a burst
// update the buffer immediately but refresh widget geometry at most once
// per burst, which is where ForceGeometryResync earns its keep.
type Viewport struct {
	mu sync.Mutex

	vp      viewport.Model
	lines   []string
	partial string // trailing output without a newline yet
	max     int

	// Renderer-side bookkeeping of the scrollable range. Refreshed when
	// content is pushed into the widget; stale between pushes.
	renderedMin int
	renderedMax int
	dirty       bool
}

// NewViewport creates a viewport-backed render port.
func NewViewport(width, height, scrollback int) *Viewport {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	vp := viewport.New(width, height)
	return &Viewport{
		vp:  vp,
		max: scrollback,
	}
}

// Append implements Port. Output is split into lines, ANSI-stripped, and
// appended to the logical buffer. The widget content is marked dirty and
// pushed on the next Flush (or geometry resync).
func (v *Viewport) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	text := v.partial + strings.ReplaceAll(stripANSI(string(b)), "\r", "")
	parts := strings.Split(text, "\n")
	v.partial = parts[len(parts)-1]
	v.lines = append(v.lines, parts[:len(parts)-1]...)

	if len(v.lines) > v.max {
		v.lines = v.lines[len(v.lines)-v.max:]
	}
	v.dirty = true
}

// Flush pushes buffered content into the widget and refreshes the
// rendered scroll-range bookkeeping. Call once per host frame.
func (v *Viewport) Flush() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return
	}
	v.pushContentLocked()
}

func (v *Viewport) pushContentLocked() {
	content := strings.Join(v.lines, "\n")
	if v.partial != "" {
		if content != "" {
			content += "\n"
		}
		content += v.partial
	}
	offset := v.vp.YOffset
	v.vp.SetContent(content)
	v.vp.SetYOffset(offset) // SetContent may clamp; keep the user's spot
	v.renderedMin = 0
	v.renderedMax = v.bottomLocked()
	v.dirty = false
}

// ScrollToBottom implements Port.
func (v *Viewport) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dirty {
		v.pushContentLocked()
	}
	v.vp.GotoBottom()
}

// ScrollBy implements Port.
func (v *Viewport) ScrollBy(delta int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case delta < 0:
		v.vp.LineUp(-delta)
	case delta > 0:
		v.vp.LineDown(delta)
	}
	return v.vp.YOffset
}

// ViewportOffset implements Port.
func (v *Viewport) ViewportOffset() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vp.YOffset
}

// TopOffset implements Port.
func (v *Viewport) TopOffset() int {
	return 0
}

// BottomOffset implements Port.
func (v *Viewport) BottomOffset() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bottomLocked()
}

// bottomLocked computes the highest scroll offset from the logical buffer,
// independent of what the widget currently believes.
func (v *Viewport) bottomLocked() int {
	total := len(v.lines)
	if v.partial != "" {
		total++
	}
	bottom := total - v.vp.Height
	if bottom < 0 {
		bottom = 0
	}
	return bottom
}

// RenderedRange implements Port.
func (v *Viewport) RenderedRange() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renderedMin, v.renderedMax
}

// ForceGeometryResync implements Port. Content is re-pushed and the
// scroll range recomputed while the viewing position is preserved.
func (v *Viewport) ForceGeometryResync() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pushContentLocked()
}

// SetSize resizes the widget. Geometry bookkeeping is refreshed with it.
func (v *Viewport) SetSize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vp.Width = width
	v.vp.Height = height
	v.pushContentLocked()
}

// View renders the widget for the host TUI.
func (v *Viewport) View() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dirty {
		v.pushContentLocked()
	}
	return v.vp.View()
}

// Lines returns a copy of the logical buffer, for tests and recent-output
// reads that bypass the widget.
func (v *Viewport) Lines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.lines)+1)
	out = append(out, v.lines...)
	if v.partial != "" {
		out = append(out, v.partial)
	}
	return out
}

func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiRegex.ReplaceAllString(s, "")
}
