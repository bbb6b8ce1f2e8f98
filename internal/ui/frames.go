package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// frameMsg carries a deferred callback into the next Update cycle.
type frameMsg struct {
	fn func()
}

// TeaFrames schedules callbacks onto the bubbletea update loop, so they
// run after the current render instead of in the middle of one. It is a
// follow.FrameScheduler for the controller.
type TeaFrames struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []func()
}

// NewTeaFrames creates an unbound scheduler. Callbacks queue until Bind.
func NewTeaFrames() *TeaFrames {
	return &TeaFrames{}
}

// Bind attaches the running program and flushes queued callbacks.
func (f *TeaFrames) Bind(p *tea.Program) {
	f.mu.Lock()
	f.send = p.Send
	queued := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, fn := range queued {
		p.Send(frameMsg{fn: fn})
	}
}

// NextFrame implements follow.FrameScheduler.
func (f *TeaFrames) NextFrame(fn func()) {
	f.mu.Lock()
	send := f.send
	if send == nil {
		f.pending = append(f.pending, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	send(frameMsg{fn: fn})
}
