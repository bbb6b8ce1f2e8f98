// Package desync detects and corrects drift between the logical output
// buffer and the renderer's scroll-area bookkeeping. Two independent
// triggers feed one correction: a reactive stuck-scroll counter driven by
// user gestures, and a proactive debounced geometry check driven by
// output bursts. The thresholds are deliberately kept separate; see
// DESIGN.md.
package desync

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/render"
)

var desyncLog = logging.ForComponent(logging.CompDesync)

const (
	// stuckThreshold is how many consecutive no-movement scroll attempts
	// trigger a reactive correction.
	stuckThreshold = 2

	// DefaultCooldown spaces corrections and debounces proactive checks.
	DefaultCooldown = 500 * time.Millisecond
)

// Direction of an attempted scroll, from the gesture's point of view.
type Direction int

const (
	DirUp Direction = iota
	DirDown
)

// FrameScheduler defers a correction onto the host loop's next frame.
// Corrections must not run while a user gesture is mid-flight; landing
// them on the next frame puts them after the gesture has fully settled.
type FrameScheduler interface {
	NextFrame(fn func())
}

// snapshot captures scroll state around a gesture.
type snapshot struct {
	viewport int
	top      int
	bottom   int
	valid    bool
}

// Detector owns the desync tracking state for one session.
type Detector struct {
	mu     sync.Mutex
	port   render.Port
	frames FrameScheduler

	// reactive state
	pre     snapshot
	stuck   int
	limiter *rate.Limiter // correction cooldown

	// proactive state
	debounce     time.Duration
	pendingCheck *time.Timer
	stopped      bool
}

// NewDetector creates a detector with the default 500ms cooldown and
// debounce window. A nil frames scheduler makes corrections run inline.
func NewDetector(port render.Port, frames FrameScheduler) *Detector {
	d := NewDetectorWithTiming(port, DefaultCooldown, DefaultCooldown)
	d.frames = frames
	return d
}

// NewDetectorWithTiming allows tests to shrink the cooldown and debounce.
func NewDetectorWithTiming(port render.Port, cooldown, debounce time.Duration) *Detector {
	return &Detector{
		port:     port,
		limiter:  rate.NewLimiter(rate.Every(cooldown), 1),
		debounce: debounce,
	}
}

// BeforeGesture captures the pre-gesture scroll state. Call at the start
// of every user scroll gesture.
func (d *Detector) BeforeGesture() {
	viewport := d.port.ViewportOffset()
	d.mu.Lock()
	d.pre = snapshot{
		viewport: viewport,
		top:      d.port.TopOffset(),
		bottom:   d.port.BottomOffset(),
		valid:    true,
	}
	d.mu.Unlock()
}

// AfterGesture compares post-gesture state against the snapshot. If the
// gesture produced no movement even though the buffer says movement was
// possible in the attempted direction, the stuck counter advances; two
// consecutive stuck attempts (outside the cooldown) force a resync. Any
// successful movement resets the counter.
func (d *Detector) AfterGesture(dir Direction) {
	post := d.port.ViewportOffset()

	d.mu.Lock()
	if !d.pre.valid || d.stopped {
		d.mu.Unlock()
		return
	}
	pre := d.pre
	d.pre.valid = false

	if post != pre.viewport {
		d.stuck = 0
		d.mu.Unlock()
		return
	}

	// No movement. Was movement possible per the logical buffer?
	possible := false
	switch dir {
	case DirUp:
		possible = pre.viewport > pre.top
	case DirDown:
		possible = pre.viewport < pre.bottom
	}
	if !possible {
		// Pinned at a real boundary: not a desync.
		d.mu.Unlock()
		return
	}

	d.stuck++
	if d.stuck < stuckThreshold {
		d.mu.Unlock()
		return
	}
	if !d.limiter.Allow() {
		// Inside the cooldown window: hold the counter where it is and
		// let the next trigger retry rather than looping.
		d.mu.Unlock()
		return
	}
	d.stuck = 0
	d.mu.Unlock()

	d.forceResync("forced_resync_reactive")
}

// forceResync issues the correction, deferred to the next frame when a
// scheduler is present so it lands after the current gesture settles.
// Stop before the frame fires makes the deferred correction inert.
func (d *Detector) forceResync(event string) {
	if d.frames == nil {
		desyncLog.Info(event)
		d.port.ForceGeometryResync()
		return
	}
	d.frames.NextFrame(func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if stopped {
			return
		}
		desyncLog.Info(event)
		d.port.ForceGeometryResync()
	})
}

// NoteOutputBurst schedules a proactive geometry check, debounced to at
// most one per debounce window per burst.
func (d *Detector) NoteOutputBurst() {
	d.mu.Lock()
	if d.stopped || d.pendingCheck != nil {
		d.mu.Unlock()
		return
	}
	d.pendingCheck = time.AfterFunc(d.debounce, d.proactiveCheck)
	d.mu.Unlock()
}

// proactiveCheck fires after the debounce window. It forces a resync when
// the buffer reports scrollable content while the rendered scroll area
// reports none, or the view is pinned at a rendered extreme the buffer
// disagrees with.
func (d *Detector) proactiveCheck() {
	d.mu.Lock()
	d.pendingCheck = nil
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	top, bottom := d.port.TopOffset(), d.port.BottomOffset()
	rmin, rmax := d.port.RenderedRange()
	viewport := d.port.ViewportOffset()

	bufferScrollable := bottom > top
	renderedScrollable := rmax > rmin

	mismatch := false
	switch {
	case bufferScrollable && !renderedScrollable:
		mismatch = true
	case renderedScrollable && viewport >= rmax && viewport < bottom:
		// Stuck at the rendered bottom while the buffer has more below.
		mismatch = true
	case renderedScrollable && viewport <= rmin && viewport > top:
		// Stuck at the rendered top while the buffer has more above.
		mismatch = true
	}
	if !mismatch {
		return
	}

	d.forceResync("forced_resync_proactive")
}

// NoteSuccessfulScroll resets the stuck counter. Called whenever any
// scroll visibly moves the view.
func (d *Detector) NoteSuccessfulScroll() {
	d.mu.Lock()
	d.stuck = 0
	d.mu.Unlock()
}

// Stop cancels the pending proactive check and disables the detector.
// Idempotent; used on session close/restart.
func (d *Detector) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.pendingCheck != nil {
		d.pendingCheck.Stop()
		d.pendingCheck = nil
	}
	d.mu.Unlock()
}
