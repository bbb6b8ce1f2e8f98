// Package controller owns the per-session wiring between a process
// channel, the render collaborator, follow mode, desync detection and the
// activity classifier. One Controller supervises any number of sessions,
// each identified by a stable session key.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/desync"
	"github.com/asheshgoplani/termdeck/internal/follow"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/proc"
	"github.com/asheshgoplani/termdeck/internal/render"
)

var ctrlLog = logging.ForComponent(logging.CompController)

var (
	// ErrSessionExists is returned by Open for a key with a live channel.
	ErrSessionExists = errors.New("controller: session already open")

	// ErrSessionNotFound is returned for operations on unknown keys.
	ErrSessionNotFound = errors.New("controller: session not found")
)

// Supervisor consumes the controller's side effects: status transitions
// for every session and plan file paths detected on agent channels.
type Supervisor interface {
	SessionStatus(key string, status activity.Status)
	PlanFileDetected(key, path string)
}

// Recorder persists session lifecycle and status transitions. Optional.
type Recorder interface {
	UpsertSession(key, cwd, command string, agent bool) error
	RecordTransition(key, status string, at time.Time) error
}

// PortFactory builds the render port for a session when it opens.
type PortFactory func(key string) render.Port

// Options configures a Controller.
type Options struct {
	Supervisor  Supervisor
	Recorder    Recorder
	Ports       PortFactory
	Frames      follow.FrameScheduler
	Activity    activity.Config
	RecentLines int
}

// Controller supervises session output streams.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*session
	opts     Options
}

// session bundles the per-key state. All of it is owned exclusively by
// this controller; the only cross-session surface is the read-only
// recent-output registry.
type session struct {
	mu sync.Mutex

	key     string
	cwd     string
	command string
	env     map[string]string
	agent   bool

	channel  *proc.Channel
	port     render.Port
	tracker  *follow.Tracker
	detector *desync.Detector
	monitor  *activity.Monitor
	recent   *lineBuffer
	scanner  *planScanner

	taps   map[uint64]func([]byte)
	tapSeq uint64

	// gen detaches callbacks from a released channel: restart and close
	// bump it, and callbacks from the old channel see a stale gen.
	gen    uint64
	dead   bool // channel exited or was killed; session entry may remain
	closed bool // session removed; all events are no-ops
}

// New creates a controller.
func New(opts Options) *Controller {
	if opts.Activity == (activity.Config{}) {
		opts.Activity = activity.DefaultConfig()
	}
	return &Controller{
		sessions: make(map[string]*session),
		opts:     opts,
	}
}

// Open creates the session's process channel and wiring. The only
// synchronous error is spawn failure; the session then remains open in a
// failed state (error banner in the buffer) so the user can Restart it.
func (c *Controller) Open(key, cwd, command string, env map[string]string, agent bool) error {
	c.mu.Lock()
	if existing, ok := c.sessions[key]; ok {
		existing.mu.Lock()
		live := !existing.dead && !existing.closed
		existing.mu.Unlock()
		if live {
			c.mu.Unlock()
			return ErrSessionExists
		}
	}

	s := &session{
		key:     key,
		cwd:     cwd,
		command: command,
		env:     env,
		agent:   agent,
		port:    c.opts.Ports(key),
		recent:  newLineBuffer(c.opts.RecentLines),
		taps:    make(map[uint64]func([]byte)),
	}
	s.tracker = follow.NewTracker(s.port, c.opts.Frames)
	s.scanner = newPlanScanner(func(path string) {
		if c.opts.Supervisor != nil {
			c.opts.Supervisor.PlanFileDetected(key, path)
		}
	})
	c.sessions[key] = s
	c.mu.Unlock()

	if agent {
		registerRecentOutput(key, s.recent.tail)
	}
	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.UpsertSession(key, cwd, command, agent); err != nil {
			ctrlLog.Warn("session_persist_failed",
				slog.String("session", key),
				slog.String("error", err.Error()))
		}
	}

	return c.spawn(s)
}

// spawn starts (or restarts) the process channel for a session and arms
// the detector and monitor. Caller must ensure the previous channel is
// fully released.
func (c *Controller) spawn(s *session) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.dead = false
	s.detector = desync.NewDetector(s.port, c.opts.Frames)
	s.mu.Unlock()

	// Armed before the channel exists: the first output chunk can arrive
	// before Start returns.
	monitor := activity.NewMonitor(time.Now(), c.opts.Activity, func(st activity.Status) {
		c.publishStatus(s, gen, st)
	})
	s.mu.Lock()
	s.monitor = monitor
	s.mu.Unlock()

	ch, err := proc.Start(s.key, s.cwd, s.command, s.env,
		func(b []byte) { c.onOutput(s, gen, monitor, b) },
		func(code int) { c.onExit(s, gen, code) },
	)
	if err != nil {
		monitor.Stop()
		s.mu.Lock()
		s.monitor = nil
		s.dead = true
		s.mu.Unlock()
		banner := fmt.Sprintf("\n[failed to start %q: %v]\n", s.command, err)
		s.port.Append([]byte(banner))
		s.recent.append([]byte(banner))
		return fmt.Errorf("open %s: %w", s.key, err)
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	ctrlLog.Info("session_opened",
		slog.String("session", s.key),
		slog.Bool("agent", s.agent))
	return nil
}

// onOutput is the channel's output callback. It fans one chunk out to the
// buffer, the recent-output copy, the activity monitor, the follow
// tracker and the desync detector, then the plan scanner for agent
// channels. The monitor is captured by the channel closure, not read from
// the session, so even a chunk racing Start's return is classified.
func (c *Controller) onOutput(s *session, gen uint64, monitor *activity.Monitor, b []byte) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	detector := s.detector
	s.mu.Unlock()

	s.port.Append(b)
	s.recent.append(b)
	s.fanOut(b)
	monitor.NoteOutput(len(b), time.Now())
	s.tracker.OnOutputAppended()
	detector.NoteOutputBurst()
	if s.agent {
		s.scanner.scan(b)
	}
	logging.Aggregate(logging.CompController, "chunk_dispatched", len(b),
		slog.String("session", s.key))
}

// onExit is the channel's exit callback: append the exit notice, force
// idle, and stop accepting writes. The session entry remains until Close
// so the supervisor keeps a stable handle and Restart stays possible.
func (c *Controller) onExit(s *session, gen uint64, code int) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.dead = true
	monitor, detector := s.monitor, s.detector
	s.mu.Unlock()

	notice := fmt.Sprintf("\n[process exited with code %d]\n", code)
	s.port.Append([]byte(notice))
	s.recent.append([]byte(notice))
	s.fanOut([]byte(notice))
	s.tracker.OnOutputAppended()

	if monitor != nil {
		monitor.ForceIdle()
		monitor.Stop()
	}
	if detector != nil {
		detector.Stop()
	}

	ctrlLog.Info("session_exited",
		slog.String("session", s.key),
		slog.Int("code", code))
}

// publishStatus forwards a status transition to the supervisor and the
// recorder. Transitions keep flowing through teardown (the forced idle on
// release must reach the supervisor) and stop only once the session is
// closed; stale monitors are stopped before their channel is released.
func (c *Controller) publishStatus(s *session, _ uint64, st activity.Status) {
	s.mu.Lock()
	stale := s.closed
	s.mu.Unlock()
	if stale {
		return
	}

	if c.opts.Supervisor != nil {
		c.opts.Supervisor.SessionStatus(s.key, st)
	}
	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.RecordTransition(s.key, string(st), time.Now()); err != nil {
			ctrlLog.Warn("transition_persist_failed",
				slog.String("session", s.key),
				slog.String("error", err.Error()))
		}
	}
}

// SendInput writes user keystrokes to the session's process. Input to a
// dead or unknown session is silently dropped (teardown race, not an
// error).
func (c *Controller) SendInput(key string, b []byte) {
	s := c.lookup(key)
	if s == nil {
		return
	}
	s.mu.Lock()
	ch, monitor := s.channel, s.monitor
	dead := s.dead
	s.mu.Unlock()
	if dead || ch == nil {
		return
	}
	if monitor != nil {
		monitor.NoteUserInput(time.Now())
	}
	ch.Write(b)
}

// NoteInteraction records a window-level interaction (focus change,
// click) used by the classifier's input suppression.
func (c *Controller) NoteInteraction(key string) {
	s := c.lookup(key)
	if s == nil {
		return
	}
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor != nil {
		monitor.NoteInteraction(time.Now())
	}
}

// Resize updates the PTY size. Non-positive sizes are ignored.
func (c *Controller) Resize(key string, cols, rows int) {
	s := c.lookup(key)
	if s == nil {
		return
	}
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch != nil {
		ch.Resize(cols, rows)
	}
}

// HandleScroll runs one user scroll gesture end to end with the ordering
// the whole subsystem depends on: follow-mode reacts synchronously first,
// then the scroll is attempted, then desync bookkeeping sees the result.
// Gestures on closed sessions are no-ops.
func (c *Controller) HandleScroll(key string, dir follow.Direction, lines int) {
	s := c.lookup(key)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	detector := s.detector
	s.mu.Unlock()

	// Synchronous follow-mode transition, before any scheduled
	// auto-scroll can run.
	s.tracker.OnGestureStart(dir)

	delta := lines
	if dir == follow.DirUp {
		delta = -lines
	}

	if detector != nil {
		detector.BeforeGesture()
	}
	before := s.port.ViewportOffset()
	after := s.port.ScrollBy(delta)
	if detector != nil {
		detector.AfterGesture(desyncDirection(dir))
		if after != before {
			detector.NoteSuccessfulScroll()
		}
	}

	s.tracker.OnGestureSettled()
}

func desyncDirection(d follow.Direction) desync.Direction {
	if d == follow.DirUp {
		return desync.DirUp
	}
	return desync.DirDown
}

// ScrollToBottom is the explicit jump-to-bottom command: forces follow
// mode back on.
func (c *Controller) ScrollToBottom(key string) {
	if s := c.lookup(key); s != nil {
		s.tracker.ScrollToBottomCommand()
	}
}

// Following reports the session's follow state.
func (c *Controller) Following(key string) bool {
	if s := c.lookup(key); s != nil {
		return s.tracker.Following()
	}
	return false
}

// IsAtBottom reports whether the session's view is at the bottom.
func (c *Controller) IsAtBottom(key string) bool {
	if s := c.lookup(key); s != nil {
		return s.tracker.IsAtBottom()
	}
	return false
}

// Status returns the session's activity classification.
func (c *Controller) Status(key string) activity.Status {
	s := c.lookup(key)
	if s == nil {
		return activity.StatusIdle
	}
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor == nil {
		return activity.StatusIdle
	}
	return monitor.Status()
}

// Port exposes the session's render port for the host view layer.
func (c *Controller) Port(key string) render.Port {
	if s := c.lookup(key); s != nil {
		return s.port
	}
	return nil
}

// ReadRecentOutput returns the last n lines of an agent session's output,
// or ok=false when the key is not a registered agent channel or has been
// closed.
func (c *Controller) ReadRecentOutput(key string, n int) (string, bool) {
	return RecentOutput(key, n)
}

// SubscribeOutput registers fn to receive every output chunk (and the
// exit notice) for a session, for live viewers. The returned cancel is
// idempotent. ok=false when the key is unknown.
func (c *Controller) SubscribeOutput(key string, fn func([]byte)) (cancel func(), ok bool) {
	s := c.lookup(key)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	s.tapSeq++
	id := s.tapSeq
	s.taps[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.taps, id)
		s.mu.Unlock()
	}, true
}

// fanOut delivers one chunk to live-output subscribers. Callbacks run
// outside the session lock on the output goroutine; slow subscribers
// must buffer on their side.
func (s *session) fanOut(b []byte) {
	s.mu.Lock()
	if len(s.taps) == 0 {
		s.mu.Unlock()
		return
	}
	fns := make([]func([]byte), 0, len(s.taps))
	for _, fn := range s.taps {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(b)
	}
}

// Restart closes the session's channel and reopens it with identical
// parameters. The session key is unchanged, so external observers keep a
// stable handle; follow, desync and activity state start fresh.
func (c *Controller) Restart(key string) error {
	s := c.lookup(key)
	if s == nil {
		return ErrSessionNotFound
	}

	c.releaseChannel(s)

	s.tracker.Reset()
	s.recent.reset()
	s.scanner.reset()

	ctrlLog.Info("session_restarting", slog.String("session", key))
	return c.spawn(s)
}

// Close tears the session down: timers cancelled, listeners detached,
// channel killed, registry entry removed. Idempotent; a second Close is
// observably identical to the first.
func (c *Controller) Close(key string) {
	c.mu.Lock()
	s := c.sessions[key]
	if s != nil {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
	if s == nil {
		return
	}

	deregisterRecentOutput(key)
	c.releaseChannel(s)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	ctrlLog.Info("session_closed", slog.String("session", key))
}

// CloseAll closes every open session. Used on host shutdown.
func (c *Controller) CloseAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.sessions))
	for k := range c.sessions {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.Close(k)
	}
}

// SessionInfo is a point-in-time snapshot of one session.
type SessionInfo struct {
	Key     string
	Cwd     string
	Command string
	Agent   bool
	Dead    bool
	Status  activity.Status
}

// Sessions snapshots every open session, for listings.
func (c *Controller) Sessions() []SessionInfo {
	c.mu.Lock()
	all := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		all = append(all, s)
	}
	c.mu.Unlock()

	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		info := SessionInfo{
			Key:     s.key,
			Cwd:     s.cwd,
			Command: s.command,
			Agent:   s.agent,
			Dead:    s.dead,
			Status:  activity.StatusIdle,
		}
		monitor := s.monitor
		s.mu.Unlock()
		if monitor != nil {
			info.Status = monitor.Status()
		}
		out = append(out, info)
	}
	return out
}

// SessionKeys lists open sessions.
func (c *Controller) SessionKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.sessions))
	for k := range c.sessions {
		keys = append(keys, k)
	}
	return keys
}

// releaseChannel detaches callbacks, cancels all per-session timers and
// kills the channel. The generation bump guarantees no callback fires
// against the released handle afterwards.
func (c *Controller) releaseChannel(s *session) {
	s.mu.Lock()
	s.gen++ // detach in-flight callbacks first
	ch := s.channel
	monitor, detector := s.monitor, s.detector
	s.channel = nil
	s.monitor = nil
	s.detector = nil
	s.dead = true
	s.mu.Unlock()

	if monitor != nil {
		// Never leave the external indicator stuck on working.
		monitor.ForceIdle()
		monitor.Stop()
	}
	if detector != nil {
		detector.Stop()
	}
	if ch != nil {
		ch.Kill()
		ch.Wait()
	}
}

func (c *Controller) lookup(key string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[key]
}
