//go:build !windows
// +build !windows

package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/controller"
	"github.com/asheshgoplani/termdeck/internal/follow"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "pgup":
		return tea.KeyMsg{Type: tea.KeyPgUp}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func newTestApp(t *testing.T) (*App, *controller.Controller) {
	t.Helper()
	frames := NewTeaFrames()
	app := NewApp(nil, frames, 1000)
	ctrl := controller.New(controller.Options{
		Ports:  app.MakePort,
		Frames: frames,
		Activity: activity.Config{
			Warmup:           10 * time.Millisecond,
			InputSuppression: 20 * time.Millisecond,
			IdleTimeout:      100 * time.Millisecond,
		},
	})
	app.SetController(ctrl)
	t.Cleanup(ctrl.CloseAll)
	return app, ctrl
}

func TestAppTabCyclesSessions(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "sleep 30", nil, false))
	require.NoError(t, ctrl.Open("b", t.TempDir(), "sleep 30", nil, false))

	assert.Equal(t, "a", app.activeKey())
	app.Update(key("tab"))
	assert.Equal(t, "b", app.activeKey())
	app.Update(key("tab"))
	assert.Equal(t, "a", app.activeKey())
	app.Update(key("shift+tab"))
	assert.Equal(t, "b", app.activeKey())
}

func TestAppScrollKeysDriveFollowMode(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "cat", nil, false))

	// Fill well past one pane
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	port := ctrl.Port("a")
	for i := 0; i < 100; i++ {
		port.Append([]byte("line\n"))
	}
	require.True(t, ctrl.Following("a"))

	app.Update(key("pgup"))
	assert.False(t, ctrl.Following("a"))

	app.Update(key("G"))
	assert.True(t, ctrl.Following("a"))
}

func TestAppMouseWheelScrolls(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "cat", nil, false))

	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	port := ctrl.Port("a")
	for i := 0; i < 100; i++ {
		port.Append([]byte("line\n"))
	}

	app.Update(tea.MouseMsg{Type: tea.MouseWheelUp})
	assert.False(t, ctrl.Following("a"))
}

func TestAppInputModeForwardsKeys(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "cat", nil, true))

	app.Update(key("i"))
	assert.True(t, app.inputMode)

	// Scroll bindings must not fire while typing
	app.Update(key("k"))
	assert.True(t, ctrl.Following("a"))

	app.Update(key("esc"))
	assert.False(t, app.inputMode)
}

func TestAppPickerSwitchesSession(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("agent-api", t.TempDir(), "sleep 30", nil, false))
	require.NoError(t, ctrl.Open("shell", t.TempDir(), "sleep 30", nil, false))

	app.Update(key("/"))
	require.NotNil(t, app.picker)

	app.Update(key("sh"))
	app.Update(key("enter"))
	assert.Nil(t, app.picker)
	assert.Equal(t, "shell", app.activeKey())
}

func TestAppStatusMsgUpdatesTab(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "sleep 30", nil, false))

	app.Update(StatusMsg{Key: "a", Status: activity.StatusWorking})
	assert.Equal(t, activity.StatusWorking, app.statuses["a"])
}

func TestAppCloseRemovesTab(t *testing.T) {
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "sleep 30", nil, false))
	require.NoError(t, ctrl.Open("b", t.TempDir(), "sleep 30", nil, false))

	app.Update(key("tab")) // active=b
	app.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.Equal(t, []string{"a"}, app.order)
	assert.Equal(t, "a", app.activeKey())
}

func TestKeyToBytes(t *testing.T) {
	assert.Equal(t, []byte("ls"), keyToBytes(runes("ls")))
	assert.Equal(t, []byte("\r"), keyToBytes(tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Equal(t, []byte{0x7f}, keyToBytes(tea.KeyMsg{Type: tea.KeyBackspace}))
	assert.Equal(t, []byte{0x03}, keyToBytes(tea.KeyMsg{Type: tea.KeyCtrlC}))
	assert.Equal(t, []byte("\x1b[A"), keyToBytes(tea.KeyMsg{Type: tea.KeyUp}))
	assert.Nil(t, keyToBytes(tea.KeyMsg{Type: tea.KeyF1}))
}

func TestTeaFramesQueuesUntilBound(t *testing.T) {
	frames := NewTeaFrames()
	ran := false
	frames.NextFrame(func() { ran = true })
	assert.False(t, ran)
	assert.Len(t, frames.pending, 1)
}

func TestHandleScrollOrderWithTeaFrames(t *testing.T) {
	// The gesture handler must break follow mode before any queued
	// frame callback can auto-scroll.
	app, ctrl := newTestApp(t)
	require.NoError(t, ctrl.Open("a", t.TempDir(), "cat", nil, false))
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	port := ctrl.Port("a")
	for i := 0; i < 100; i++ {
		port.Append([]byte("line\n"))
	}

	app.Update(key("pgup"))
	require.False(t, ctrl.Following("a"))

	// Drain queued frame callbacks the way the program loop would
	for _, fn := range app.frames.pending {
		fn()
	}
	app.frames.pending = nil

	assert.False(t, ctrl.Following("a"), "queued retry must not re-enable follow")
}

var _ follow.FrameScheduler = (*TeaFrames)(nil)
