package activity

import "time"

// Status is the coarse working/idle classification of a session, derived
// from output timing rather than output content.
type Status string

const (
	StatusIdle    Status = "idle"    // no recent process output
	StatusWorking Status = "working" // process is actively emitting output
)

// Config tunes the classifier.
type Config struct {
	// Warmup ignores output bursts right after spawn (prompt/banner text).
	Warmup time.Duration

	// InputSuppression treats output shortly after user input as echo,
	// not genuine activity.
	InputSuppression time.Duration

	// IdleTimeout is how long after the last working signal the status
	// falls back to idle.
	IdleTimeout time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Warmup:           5 * time.Second,
		InputSuppression: 200 * time.Millisecond,
		IdleTimeout:      1 * time.Second,
	}
}

// State is the explicit classifier state. No hidden globals: callers own
// one State per session and thread it through Classify.
type State struct {
	LastUserInput   time.Time
	LastInteraction time.Time
	Status          Status
	StartTime       time.Time
}

// Decision is the outcome of classifying one output event.
type Decision struct {
	// Status is the resulting status (unchanged unless Changed).
	Status Status

	// Changed reports whether Status differs from the previous status.
	Changed bool

	// ScheduleIdleCheck reports whether an idle timer should be (re)armed
	// IdleTimeout from now.
	ScheduleIdleCheck bool
}

// Classify maps one output event onto a status decision. Pure function:
// same inputs always yield the same decision. Rules apply in order:
//
//  1. Empty chunks are ignored entirely.
//  2. Output inside the warmup window after spawn is ignored, so a new
//     channel's banner text never registers as the agent working.
//  3. Output shortly after user input or window interaction is treated as
//     echo: status is unchanged but the idle timer is still armed.
//  4. Anything else is a genuine working signal.
func Classify(dataLen int, now time.Time, st State, cfg Config) Decision {
	if dataLen <= 0 {
		return Decision{Status: st.Status}
	}

	if now.Sub(st.StartTime) < cfg.Warmup {
		return Decision{Status: st.Status}
	}

	if now.Sub(st.LastUserInput) < cfg.InputSuppression ||
		now.Sub(st.LastInteraction) < cfg.InputSuppression {
		return Decision{Status: st.Status, ScheduleIdleCheck: true}
	}

	return Decision{
		Status:            StatusWorking,
		Changed:           st.Status != StatusWorking,
		ScheduleIdleCheck: true,
	}
}
