// Package follow tracks whether a session's view should auto-scroll to
// new output. The tracker is a two-state machine (Following /
// NotFollowing) whose single hard requirement is ordering: a user scroll
// gesture must flip the state synchronously inside the gesture handler,
// before any output-driven auto-scroll scheduled in the same pass runs.
package follow

import (
	"sync"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/render"
)

var followLog = logging.ForComponent(logging.CompFollow)

// bottomTolerance is how close (in lines) the viewport must be to the
// bottom offset to still count as "at bottom".
const bottomTolerance = 1

// Direction of a scroll gesture.
type Direction int

const (
	DirUp Direction = iota
	DirDown
)

// FrameScheduler runs a callback on the host's next render frame. Used
// only for the one-shot bottom-scroll retry after an append lands short
// (renderer not yet laid out).
type FrameScheduler interface {
	NextFrame(fn func())
}

// Tracker owns the follow state for one session.
type Tracker struct {
	mu        sync.Mutex
	port      render.Port
	frames    FrameScheduler
	following bool

	// retryGen invalidates a scheduled retry when a gesture cancels it or
	// a newer append supersedes it. At most one retry is pending.
	retryGen     uint64
	retryPending bool
}

// NewTracker creates a tracker in the Following state.
func NewTracker(port render.Port, frames FrameScheduler) *Tracker {
	return &Tracker{
		port:      port,
		frames:    frames,
		following: true,
	}
}

// Following reports the current follow state.
func (t *Tracker) Following() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.following
}

// IsAtBottom reports whether the viewport is within one line of the
// buffer's bottom offset.
func (t *Tracker) IsAtBottom() bool {
	return t.atBottom()
}

func (t *Tracker) atBottom() bool {
	return t.port.BottomOffset()-t.port.ViewportOffset() <= bottomTolerance
}

// OnOutputAppended is called after each buffer append. While following it
// issues exactly one scroll-to-bottom, plus at most one retry on the next
// frame if the scroll lands short.
//
// The follow check and the scroll happen under one lock acquisition.
// Output callbacks arrive on the channel's reader goroutine while
// gestures run on the host loop; an upward gesture arriving mid-append
// either flips the state before the check or waits until this scroll has
// finished, so an in-flight auto-scroll can never land after the gesture
// has turned following off.
func (t *Tracker) OnOutputAppended() {
	t.mu.Lock()
	if !t.following {
		t.mu.Unlock()
		return
	}

	t.port.ScrollToBottom()
	if t.atBottom() {
		t.mu.Unlock()
		return
	}

	// Landed short: the renderer hasn't laid the new content out yet.
	// Retry once on the next frame. A newer append reuses the pending
	// retry instead of stacking another.
	if t.retryPending || t.frames == nil {
		t.mu.Unlock()
		return
	}
	t.retryPending = true
	gen := t.retryGen
	t.mu.Unlock()

	t.frames.NextFrame(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.retryPending = false
		if gen != t.retryGen || !t.following {
			return
		}
		t.port.ScrollToBottom()
	})
}

// OnGestureStart is called synchronously at the start of a user scroll
// gesture, before its final resting position is known. Upward gestures
// force NotFollowing immediately and cancel any pending retry, so an
// in-flight auto-scroll cannot overwrite the user's intent.
func (t *Tracker) OnGestureStart(dir Direction) {
	if dir != DirUp {
		return
	}
	t.mu.Lock()
	wasFollowing := t.following
	t.following = false
	t.retryGen++ // cancels a pending retry
	t.mu.Unlock()

	if wasFollowing {
		followLog.Debug("follow_off_gesture")
	}
}

// OnGestureSettled is called after a gesture's resulting position is
// known. Follow state becomes whatever the position says: at bottom means
// following again.
func (t *Tracker) OnGestureSettled() {
	t.mu.Lock()
	atBottom := t.atBottom()
	changed := t.following != atBottom
	t.following = atBottom
	if !atBottom {
		t.retryGen++
	}
	t.mu.Unlock()

	if changed {
		if atBottom {
			followLog.Debug("follow_on_settled")
		} else {
			followLog.Debug("follow_off_settled")
		}
	}
}

// ScrollToBottomCommand is the explicit "jump to bottom" action: forces
// Following and scrolls immediately.
func (t *Tracker) ScrollToBottomCommand() {
	t.mu.Lock()
	t.following = true
	t.port.ScrollToBottom()
	t.mu.Unlock()
}

// Reset returns the tracker to its initial state (Following, no pending
// retry). Used on session restart.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.following = true
	t.retryGen++
	t.retryPending = false
	t.mu.Unlock()
}
