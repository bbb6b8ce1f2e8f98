package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRules(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dataLen int
		now     time.Time
		st      State
		want    Decision
	}{
		{
			name:    "empty chunk ignored",
			dataLen: 0,
			now:     start.Add(time.Minute),
			st:      State{Status: StatusIdle, StartTime: start},
			want:    Decision{Status: StatusIdle},
		},
		{
			name:    "negative length ignored",
			dataLen: -1,
			now:     start.Add(time.Minute),
			st:      State{Status: StatusIdle, StartTime: start},
			want:    Decision{Status: StatusIdle},
		},
		{
			name:    "inside warmup window ignored",
			dataLen: 100,
			now:     start.Add(cfg.Warmup - time.Millisecond),
			st:      State{Status: StatusIdle, StartTime: start},
			want:    Decision{Status: StatusIdle},
		},
		{
			name:    "just past warmup becomes working",
			dataLen: 100,
			now:     start.Add(cfg.Warmup + time.Millisecond),
			st:      State{Status: StatusIdle, StartTime: start},
			want:    Decision{Status: StatusWorking, Changed: true, ScheduleIdleCheck: true},
		},
		{
			name:    "recent user input suppresses but schedules idle check",
			dataLen: 10,
			now:     start.Add(time.Minute),
			st: State{
				Status:        StatusIdle,
				StartTime:     start,
				LastUserInput: start.Add(time.Minute - 50*time.Millisecond),
			},
			want: Decision{Status: StatusIdle, ScheduleIdleCheck: true},
		},
		{
			name:    "recent window interaction suppresses",
			dataLen: 10,
			now:     start.Add(time.Minute),
			st: State{
				Status:          StatusIdle,
				StartTime:       start,
				LastInteraction: start.Add(time.Minute - 100*time.Millisecond),
			},
			want: Decision{Status: StatusIdle, ScheduleIdleCheck: true},
		},
		{
			name:    "already working stays working without Changed",
			dataLen: 10,
			now:     start.Add(time.Minute),
			st:      State{Status: StatusWorking, StartTime: start},
			want:    Decision{Status: StatusWorking, ScheduleIdleCheck: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.dataLen, tt.now, tt.st, cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Now()
	st := State{Status: StatusIdle, StartTime: start}
	now := start.Add(10 * time.Second)

	first := Classify(50, now, st, cfg)
	second := Classify(50, now, st, cfg)
	assert.Equal(t, first, second)
}

// fastConfig shrinks timings so monitor tests run quickly.
func fastConfig() Config {
	return Config{
		Warmup:           10 * time.Millisecond,
		InputSuppression: 20 * time.Millisecond,
		IdleTimeout:      50 * time.Millisecond,
	}
}

// transitionRecorder captures status transitions in order.
type transitionRecorder struct {
	mu          sync.Mutex
	transitions []Status
}

func (r *transitionRecorder) record(s Status) {
	r.mu.Lock()
	r.transitions = append(r.transitions, s)
	r.mu.Unlock()
}

func (r *transitionRecorder) snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func TestMonitorIdleDebounce(t *testing.T) {
	cfg := fastConfig()
	rec := &transitionRecorder{}
	start := time.Now().Add(-time.Minute) // well past warmup
	m := NewMonitor(start, cfg, rec.record)
	defer m.Stop()

	m.NoteOutput(100, time.Now())
	require.Equal(t, StatusWorking, m.Status())

	// Still working just before the idle timeout
	time.Sleep(cfg.IdleTimeout / 2)
	assert.Equal(t, StatusWorking, m.Status())

	// Idle exactly once after the timeout elapses with no further signal
	require.Eventually(t, func() bool {
		return m.Status() == StatusIdle
	}, time.Second, 5*time.Millisecond)

	time.Sleep(2 * cfg.IdleTimeout)
	assert.Equal(t, []Status{StatusWorking, StatusIdle}, rec.snapshot())
}

func TestMonitorWorkingSignalCancelsPendingIdle(t *testing.T) {
	cfg := fastConfig()
	rec := &transitionRecorder{}
	m := NewMonitor(time.Now().Add(-time.Minute), cfg, rec.record)
	defer m.Stop()

	// Keep emitting faster than the idle timeout; status must hold working
	for i := 0; i < 5; i++ {
		m.NoteOutput(10, time.Now())
		time.Sleep(cfg.IdleTimeout / 3)
		assert.Equal(t, StatusWorking, m.Status())
	}

	require.Eventually(t, func() bool {
		return m.Status() == StatusIdle
	}, time.Second, 5*time.Millisecond)

	// Exactly one working and one idle transition despite many chunks
	assert.Equal(t, []Status{StatusWorking, StatusIdle}, rec.snapshot())
}

func TestMonitorForceIdle(t *testing.T) {
	cfg := fastConfig()
	rec := &transitionRecorder{}
	m := NewMonitor(time.Now().Add(-time.Minute), cfg, rec.record)
	defer m.Stop()

	m.NoteOutput(10, time.Now())
	require.Equal(t, StatusWorking, m.Status())

	m.ForceIdle()
	assert.Equal(t, StatusIdle, m.Status())

	// Pending idle timer must not double-fire a transition
	time.Sleep(2 * cfg.IdleTimeout)
	assert.Equal(t, []Status{StatusWorking, StatusIdle}, rec.snapshot())
}

func TestMonitorForceIdleWhenAlreadyIdle(t *testing.T) {
	rec := &transitionRecorder{}
	m := NewMonitor(time.Now(), fastConfig(), rec.record)
	defer m.Stop()

	m.ForceIdle()
	assert.Empty(t, rec.snapshot())
}

func TestMonitorInputSuppression(t *testing.T) {
	cfg := fastConfig()
	rec := &transitionRecorder{}
	m := NewMonitor(time.Now().Add(-time.Minute), cfg, rec.record)
	defer m.Stop()

	now := time.Now()
	m.NoteUserInput(now)
	m.NoteOutput(10, now.Add(cfg.InputSuppression/2))

	// Echo of the user's own typing: no working transition
	assert.Equal(t, StatusIdle, m.Status())
}
