package main

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/ui"
	"github.com/asheshgoplani/termdeck/internal/watch"
)

// supervisorBridge forwards controller side effects into the bubbletea
// program. Events that arrive before the program starts are queued and
// replayed on bind.
type supervisorBridge struct {
	mu      sync.Mutex
	sendFn  func(tea.Msg)
	queued  []tea.Msg
	cwds    map[string]string
	watcher *watch.PlanWatcher
}

func newSupervisorBridge() *supervisorBridge {
	return &supervisorBridge{cwds: make(map[string]string)}
}

func (s *supervisorBridge) bind(send func(tea.Msg)) {
	s.mu.Lock()
	s.sendFn = send
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	for _, msg := range queued {
		send(msg)
	}
}

func (s *supervisorBridge) send(msg tea.Msg) {
	s.mu.Lock()
	if s.sendFn == nil {
		s.queued = append(s.queued, msg)
		s.mu.Unlock()
		return
	}
	send := s.sendFn
	s.mu.Unlock()
	send(msg)
}

func (s *supervisorBridge) rememberCwd(key, cwd string) {
	s.mu.Lock()
	s.cwds[key] = cwd
	s.mu.Unlock()
}

// SessionStatus implements controller.Supervisor.
func (s *supervisorBridge) SessionStatus(key string, status activity.Status) {
	s.send(ui.StatusMsg{Key: key, Status: status})
}

// PlanFileDetected implements controller.Supervisor. The path is shown
// in the UI and handed to the plan watcher for change tracking.
func (s *supervisorBridge) PlanFileDetected(key, path string) {
	s.send(ui.PlanMsg{Key: key, Path: path})

	s.mu.Lock()
	cwd := s.cwds[key]
	watcher := s.watcher
	s.mu.Unlock()
	if watcher == nil {
		return
	}
	if err := watcher.Track(key, cwd, path); err != nil {
		logging.ForComponent(logging.CompUI).Debug("plan_track_failed",
			slog.String("session", key),
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
