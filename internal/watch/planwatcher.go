// Package watch follows plan files on disk after an agent session has
// announced them, so the supervisor hears about later edits too.
package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/platform"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// PlanWatcher watches announced plan files for writes. Directories are
// watched rather than the files themselves, so editors that replace the
// file on save keep triggering events.
type PlanWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(sessionKey, path string)
	debounce time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	tracked map[string]trackedPlan // absolute file path -> plan
	dirRefs map[string]int
	timers  map[string]*time.Timer
}

type trackedPlan struct {
	sessionKey string
	path       string // as announced, reported back unchanged
}

// NewPlanWatcher creates a plan file watcher.
func NewPlanWatcher(onChange func(sessionKey, path string)) (*PlanWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &PlanWatcher{
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: 100 * time.Millisecond, // rapid saves collapse to one event
		stopCh:   make(chan struct{}),
		tracked:  make(map[string]trackedPlan),
		dirRefs:  make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
	go w.watchLoop()
	return w, nil
}

// SetDebounce sets the debounce duration. Call before Track.
func (w *PlanWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Track starts watching one announced plan file. path is resolved
// against cwd when relative; the file does not have to exist yet.
func (w *PlanWatcher) Track(sessionKey, cwd, path string) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, path)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.tracked[abs]; ok {
		return nil
	}
	if w.dirRefs[dir] == 0 {
		if warn := platform.CheckFsnotifySupport(dir); warn != "" {
			watchLog.Warn("plan_watch_degraded",
				slog.String("dir", dir),
				slog.String("detail", warn))
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.dirRefs[dir]++
	w.tracked[abs] = trackedPlan{sessionKey: sessionKey, path: path}

	watchLog.Debug("plan_tracked",
		slog.String("session", sessionKey),
		slog.String("path", abs))
	return nil
}

// Untrack stops watching one plan file.
func (w *PlanWatcher) Untrack(cwd, path string) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, path)
	}
	w.untrackAbs(abs)
}

// UntrackSession drops every plan tracked for one session.
func (w *PlanWatcher) UntrackSession(sessionKey string) {
	w.mu.Lock()
	var stale []string
	for abs, plan := range w.tracked {
		if plan.sessionKey == sessionKey {
			stale = append(stale, abs)
		}
	}
	w.mu.Unlock()

	for _, abs := range stale {
		w.untrackAbs(abs)
	}
}

func (w *PlanWatcher) untrackAbs(abs string) {
	dir := filepath.Dir(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[abs]; !ok {
		return
	}
	delete(w.tracked, abs)
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}
	w.dirRefs[dir]--
	if w.dirRefs[dir] <= 0 {
		delete(w.dirRefs, dir)
		_ = w.watcher.Remove(dir)
	}
}

// Stop stops the watcher. Idempotent.
func (w *PlanWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
	return err
}

func (w *PlanWatcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.noteEvent(filepath.Clean(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watchLog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// noteEvent debounces per file, then fires the change callback.
func (w *PlanWatcher) noteEvent(abs string) {
	w.mu.Lock()
	plan, ok := w.tracked[abs]
	if !ok {
		w.mu.Unlock()
		return
	}
	if t, ok := w.timers[abs]; ok {
		t.Stop()
	}
	w.timers[abs] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, abs)
		_, still := w.tracked[abs]
		w.mu.Unlock()
		if still {
			w.onChange(plan.sessionKey, plan.path)
		}
	})
	w.mu.Unlock()
}
