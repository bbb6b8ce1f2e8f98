package desync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckPort simulates a renderer whose scroll area has gone stale: the
// logical buffer has scrollback but scrolling never moves the view.
type stuckPort struct {
	viewport int
	top      int
	bottom   int

	renderedMin int
	renderedMax int

	frozen      bool // scroll attempts produce no movement
	resyncCalls int
}

func (p *stuckPort) Append(b []byte) {}
func (p *stuckPort) ScrollToBottom() {
	if !p.frozen {
		p.viewport = p.bottom
	}
}
func (p *stuckPort) ScrollBy(delta int) int {
	if p.frozen {
		return p.viewport
	}
	p.viewport += delta
	if p.viewport < p.top {
		p.viewport = p.top
	}
	if p.viewport > p.bottom {
		p.viewport = p.bottom
	}
	return p.viewport
}
func (p *stuckPort) ViewportOffset() int       { return p.viewport }
func (p *stuckPort) TopOffset() int            { return p.top }
func (p *stuckPort) BottomOffset() int         { return p.bottom }
func (p *stuckPort) RenderedRange() (int, int) { return p.renderedMin, p.renderedMax }
func (p *stuckPort) ForceGeometryResync() {
	p.resyncCalls++
	p.frozen = false
	p.renderedMin = p.top
	p.renderedMax = p.bottom
}

// attemptScrollUp mimics the gesture path: snapshot, attempt, compare.
func attemptScrollUp(d *Detector, p *stuckPort) {
	d.BeforeGesture()
	p.ScrollBy(-3)
	d.AfterGesture(DirUp)
}

func TestTwoStuckAttemptsTriggerOneResync(t *testing.T) {
	// 500 lines of scrollback, view frozen mid-buffer
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	d := NewDetector(p, nil)
	defer d.Stop()

	attemptScrollUp(d, p)
	assert.Zero(t, p.resyncCalls, "one stuck attempt must not resync")

	attemptScrollUp(d, p)
	assert.Equal(t, 1, p.resyncCalls, "second consecutive stuck attempt must resync")
}

// queueFrames collects deferred corrections; run fires them in order.
type queueFrames struct {
	fns []func()
}

func (q *queueFrames) NextFrame(fn func()) { q.fns = append(q.fns, fn) }

func (q *queueFrames) run() {
	fns := q.fns
	q.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func TestReactiveResyncDeferredToNextFrame(t *testing.T) {
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	frames := &queueFrames{}
	d := NewDetector(p, frames)
	defer d.Stop()

	attemptScrollUp(d, p)
	attemptScrollUp(d, p)

	// The correction must not run inside the gesture handler itself.
	assert.Zero(t, p.resyncCalls, "resync ran while the gesture was mid-flight")
	require.Len(t, frames.fns, 1)

	frames.run()
	assert.Equal(t, 1, p.resyncCalls)
}

func TestDeferredResyncInertAfterStop(t *testing.T) {
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	frames := &queueFrames{}
	d := NewDetector(p, frames)

	attemptScrollUp(d, p)
	attemptScrollUp(d, p)
	require.Len(t, frames.fns, 1)

	d.Stop()
	frames.run()
	assert.Zero(t, p.resyncCalls)
}

func TestCooldownBlocksImmediateSecondResync(t *testing.T) {
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	d := NewDetector(p, nil)
	defer d.Stop()

	attemptScrollUp(d, p)
	attemptScrollUp(d, p)
	require.Equal(t, 1, p.resyncCalls)

	// Renderer still broken; an immediate third and fourth attempt stay
	// inside the 500ms cooldown window.
	p.frozen = true
	attemptScrollUp(d, p)
	attemptScrollUp(d, p)
	assert.Equal(t, 1, p.resyncCalls, "resync fired inside cooldown")
}

func TestResyncAllowedAgainAfterCooldown(t *testing.T) {
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	d := NewDetectorWithTiming(p, 30*time.Millisecond, 30*time.Millisecond)
	defer d.Stop()

	attemptScrollUp(d, p)
	attemptScrollUp(d, p)
	require.Equal(t, 1, p.resyncCalls)

	p.frozen = true
	time.Sleep(50 * time.Millisecond)
	attemptScrollUp(d, p)
	attemptScrollUp(d, p)
	assert.Equal(t, 2, p.resyncCalls)
}

func TestSuccessfulScrollResetsCounter(t *testing.T) {
	p := &stuckPort{viewport: 250, top: 0, bottom: 500, frozen: true}
	d := NewDetector(p, nil)
	defer d.Stop()

	attemptScrollUp(d, p)

	// A successful scroll intervenes
	p.frozen = false
	attemptScrollUp(d, p)

	// Frozen again: needs two fresh stuck attempts
	p.frozen = true
	attemptScrollUp(d, p)
	assert.Zero(t, p.resyncCalls)
	attemptScrollUp(d, p)
	assert.Equal(t, 1, p.resyncCalls)
}

func TestBoundaryIsNotDesync(t *testing.T) {
	// Viewport already at the top: scrolling up cannot move, and that is
	// correct behavior, not a desync.
	p := &stuckPort{viewport: 0, top: 0, bottom: 500, frozen: true}
	d := NewDetector(p, nil)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		attemptScrollUp(d, p)
	}
	assert.Zero(t, p.resyncCalls)
}

func TestProactiveCheckDetectsCollapsedRange(t *testing.T) {
	// Buffer has 500 lines of scrollback but the renderer reports no
	// scrollable range at all.
	p := &stuckPort{viewport: 0, top: 0, bottom: 500, renderedMin: 0, renderedMax: 0}
	d := NewDetectorWithTiming(p, 20*time.Millisecond, 20*time.Millisecond)
	defer d.Stop()

	d.NoteOutputBurst()
	require.Eventually(t, func() bool { return p.resyncCalls == 1 },
		time.Second, 5*time.Millisecond)
}

func TestProactiveCheckDebounces(t *testing.T) {
	p := &stuckPort{viewport: 0, top: 0, bottom: 500, renderedMin: 0, renderedMax: 0}
	d := NewDetectorWithTiming(p, 20*time.Millisecond, 20*time.Millisecond)
	defer d.Stop()

	// A burst of notifications collapses into one check. The resync fixes
	// the rendered range, so later checks find nothing.
	for i := 0; i < 50; i++ {
		d.NoteOutputBurst()
	}
	require.Eventually(t, func() bool { return p.resyncCalls == 1 },
		time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, p.resyncCalls)
}

func TestProactiveCheckHealthyGeometryNoResync(t *testing.T) {
	p := &stuckPort{viewport: 500, top: 0, bottom: 500, renderedMin: 0, renderedMax: 500}
	d := NewDetectorWithTiming(p, 10*time.Millisecond, 10*time.Millisecond)
	defer d.Stop()

	d.NoteOutputBurst()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, p.resyncCalls)
}

func TestProactiveCheckStuckAtRenderedBottom(t *testing.T) {
	// Renderer believes max offset is 300 while the buffer extends to 500.
	p := &stuckPort{viewport: 300, top: 0, bottom: 500, renderedMin: 0, renderedMax: 300}
	d := NewDetectorWithTiming(p, 10*time.Millisecond, 10*time.Millisecond)
	defer d.Stop()

	d.NoteOutputBurst()
	require.Eventually(t, func() bool { return p.resyncCalls == 1 },
		time.Second, 5*time.Millisecond)
}

func TestStopCancelsPendingCheck(t *testing.T) {
	p := &stuckPort{viewport: 0, top: 0, bottom: 500}
	d := NewDetectorWithTiming(p, 20*time.Millisecond, 20*time.Millisecond)

	d.NoteOutputBurst()
	d.Stop()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, p.resyncCalls)

	// After stop, triggers are inert
	d.NoteOutputBurst()
	d.BeforeGesture()
	d.AfterGesture(DirUp)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, p.resyncCalls)
}
