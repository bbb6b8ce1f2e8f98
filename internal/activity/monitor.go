package activity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/termdeck/internal/logging"
)

var actLog = logging.ForComponent(logging.CompActivity)

// Monitor wraps the pure classifier with per-session state and a
// cancellable idle timer. One Monitor per session, owned by its session
// output controller. Safe for concurrent use: output arrives from the
// channel reader goroutine while input notes arrive from the UI loop.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	st        State
	idleTimer *time.Timer
	gen       uint64 // invalidates idle checks armed before a newer signal
	stopped   bool

	// onTransition fires outside the monitor lock on every status change.
	onTransition func(Status)
}

// NewMonitor creates a monitor for a channel spawned at startTime.
// onTransition may be nil.
func NewMonitor(startTime time.Time, cfg Config, onTransition func(Status)) *Monitor {
	return &Monitor{
		cfg: cfg,
		st: State{
			Status:    StatusIdle,
			StartTime: startTime,
		},
		onTransition: onTransition,
	}
}

// NoteOutput classifies one output chunk observed at now.
func (m *Monitor) NoteOutput(dataLen int, now time.Time) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	d := Classify(dataLen, now, m.st, m.cfg)

	var notify func(Status)
	if d.Changed {
		m.st.Status = d.Status
		notify = m.onTransition
	}
	if d.ScheduleIdleCheck {
		m.armIdleTimerLocked()
	}
	m.mu.Unlock()

	if notify != nil {
		actLog.Debug("status_transition", slog.String("status", string(d.Status)))
		notify(d.Status)
	}
}

// NoteUserInput records a keystroke sent to the session.
func (m *Monitor) NoteUserInput(now time.Time) {
	m.mu.Lock()
	m.st.LastUserInput = now
	m.mu.Unlock()
}

// NoteInteraction records a window-level interaction (focus, click).
func (m *Monitor) NoteInteraction(now time.Time) {
	m.mu.Lock()
	m.st.LastInteraction = now
	m.mu.Unlock()
}

// Status returns the current classification.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Status
}

// ForceIdle transitions to idle immediately, cancelling any pending idle
// check. Called on process exit and teardown so the external status
// indicator never sticks on working.
func (m *Monitor) ForceIdle() {
	m.mu.Lock()
	m.cancelIdleTimerLocked()
	changed := m.st.Status == StatusWorking
	m.st.Status = StatusIdle
	notify := m.onTransition
	m.mu.Unlock()

	if changed && notify != nil {
		notify(StatusIdle)
	}
}

// Stop cancels the idle timer and stops accepting signals. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cancelIdleTimerLocked()
	m.mu.Unlock()
}

// armIdleTimerLocked (re)schedules the idle transition IdleTimeout from
// now. A newer working signal re-arms the timer, cancelling the pending
// transition.
func (m *Monitor) armIdleTimerLocked() {
	m.gen++
	gen := m.gen
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.cfg.IdleTimeout, func() {
		m.idleCheck(gen)
	})
}

func (m *Monitor) cancelIdleTimerLocked() {
	m.gen++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// idleCheck runs when the idle timer fires. Stale generations (a newer
// signal re-armed the timer) are ignored.
func (m *Monitor) idleCheck(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		return
	}
	changed := m.st.Status == StatusWorking
	m.st.Status = StatusIdle
	notify := m.onTransition
	m.mu.Unlock()

	if changed && notify != nil {
		actLog.Debug("status_transition", slog.String("status", string(StatusIdle)))
		notify(StatusIdle)
	}
}
