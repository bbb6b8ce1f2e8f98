// Package render defines the port to the terminal render collaborator and
// a bubbles/viewport-backed implementation. The session controller talks
// only to the Port interface so it can be tested without a real widget.
package render

// Port is the render collaborator as seen by the session output
// controller. Offsets are in lines: ViewportOffset is the line index at
// the top of the view, TopOffset is the lowest reachable offset (scrollback
// start) and BottomOffset is the highest, i.e. the offset at which the
// newest content is fully visible.
type Port interface {
	// Append adds process output to the logical buffer.
	Append(b []byte)

	// ScrollToBottom moves the viewport to BottomOffset.
	ScrollToBottom()

	// ScrollBy moves the viewport by delta lines (negative = up).
	// Returns the offset actually reached.
	ScrollBy(delta int) int

	// ViewportOffset returns the current scroll position.
	ViewportOffset() int

	// TopOffset returns the lowest reachable scroll position.
	TopOffset() int

	// BottomOffset returns the highest reachable scroll position per the
	// logical buffer.
	BottomOffset() int

	// RenderedRange returns the renderer's own scroll-area bookkeeping
	// (min, max). It can go stale relative to the logical buffer; the
	// desync detector compares the two.
	RenderedRange() (min, max int)

	// ForceGeometryResync atomically recomputes scroll-area geometry from
	// the logical buffer without changing the position the user is
	// viewing. Invisible: no flash, no jump.
	ForceGeometryResync()
}
