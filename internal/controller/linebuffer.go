package controller

import (
	"strings"
	"sync"
)

// defaultRecentLines bounds the controller's own copy of recent output,
// kept separately from the render collaborator so external readers (web,
// keyboard-shortcut handlers) never need a render handle.
const defaultRecentLines = 2000

// lineBuffer is a bounded buffer of the most recent output lines.
type lineBuffer struct {
	mu      sync.Mutex
	lines   []string
	partial string
	max     int
}

func newLineBuffer(max int) *lineBuffer {
	if max <= 0 {
		max = defaultRecentLines
	}
	return &lineBuffer{max: max}
}

// append ingests raw output bytes, splitting on newlines and dropping the
// oldest lines past the bound. Carriage returns are treated as line
// rewrites the way terminals do: content after \r replaces the partial.
func (lb *lineBuffer) append(b []byte) {
	if len(b) == 0 {
		return
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()

	text := lb.partial + string(b)
	parts := strings.Split(text, "\n")
	for i, part := range parts {
		if idx := strings.LastIndexByte(part, '\r'); idx >= 0 {
			part = part[idx+1:]
		}
		if i == len(parts)-1 {
			lb.partial = part
			break
		}
		lb.lines = append(lb.lines, part)
	}
	if len(lb.lines) > lb.max {
		lb.lines = lb.lines[len(lb.lines)-lb.max:]
	}
}

// tail returns the last n lines joined with newlines. The in-progress
// partial line counts as a line when non-empty.
func (lb *lineBuffer) tail(n int) string {
	if n <= 0 {
		return ""
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()

	all := lb.lines
	if lb.partial != "" {
		all = append(append([]string{}, lb.lines...), lb.partial)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return strings.Join(all, "\n")
}

// reset clears the buffer. Used on session restart.
func (lb *lineBuffer) reset() {
	lb.mu.Lock()
	lb.lines = nil
	lb.partial = ""
	lb.mu.Unlock()
}
