package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewportAppendAndBuffer(t *testing.T) {
	v := NewViewport(80, 5, 100)

	v.Append([]byte("one\ntwo\npar"))
	assert.Equal(t, []string{"one", "two", "par"}, v.Lines())

	// Completing the partial line does not duplicate it
	v.Append([]byte("tial\nthree\n"))
	assert.Equal(t, []string{"one", "two", "partial", "three"}, v.Lines())
}

func TestViewportStripsANSI(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte("\x1b[31mred\x1b[0m text\n"))
	assert.Equal(t, []string{"red text"}, v.Lines())
}

func TestViewportScrollbackBound(t *testing.T) {
	v := NewViewport(80, 5, 10)
	for i := 0; i < 50; i++ {
		v.Append([]byte("line\n"))
	}
	assert.Len(t, v.Lines(), 10)
}

func TestViewportBottomOffsetTracksBuffer(t *testing.T) {
	v := NewViewport(80, 5, 100)
	assert.Equal(t, 0, v.BottomOffset())

	v.Append([]byte(strings.Repeat("x\n", 20)))
	assert.Equal(t, 15, v.BottomOffset())
}

func TestViewportScrollByClampsAtEdges(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte(strings.Repeat("x\n", 20)))
	v.Flush()

	assert.Equal(t, 0, v.ScrollBy(-3))

	got := v.ScrollBy(100)
	assert.Equal(t, v.BottomOffset(), got)
}

func TestViewportScrollToBottomFlushesPending(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte(strings.Repeat("x\n", 20)))

	// No Flush yet: the widget has stale content, but jumping to bottom
	// must land on the real bottom anyway.
	v.ScrollToBottom()
	assert.Equal(t, v.BottomOffset(), v.ViewportOffset())
}

func TestViewportRenderedRangeStaleUntilResync(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte(strings.Repeat("x\n", 20)))
	v.Flush()

	_, max := v.RenderedRange()
	assert.Equal(t, 15, max)

	// Buffer grows without a flush: rendered range lags the buffer
	v.Append([]byte(strings.Repeat("y\n", 20)))
	_, max = v.RenderedRange()
	assert.Equal(t, 15, max)
	assert.Equal(t, 35, v.BottomOffset())

	v.ForceGeometryResync()
	_, max = v.RenderedRange()
	assert.Equal(t, 35, max)
}

func TestViewportResyncPreservesPosition(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte(strings.Repeat("x\n", 30)))
	v.Flush()
	v.ScrollToBottom()
	v.ScrollBy(-7)
	at := v.ViewportOffset()

	v.Append([]byte("more\n"))
	v.ForceGeometryResync()
	assert.Equal(t, at, v.ViewportOffset())
}

func TestViewportSetSizeRefreshesGeometry(t *testing.T) {
	v := NewViewport(80, 5, 100)
	v.Append([]byte(strings.Repeat("x\n", 20)))
	v.Flush()
	assert.Equal(t, 15, v.BottomOffset())

	v.SetSize(80, 10)
	assert.Equal(t, 10, v.BottomOffset())
	_, max := v.RenderedRange()
	assert.Equal(t, 10, max)
}
