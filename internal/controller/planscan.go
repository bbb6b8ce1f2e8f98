package controller

import (
	"regexp"
	"sync"
)

// planWindowSize bounds the rolling text window the scanner matches
// against, so a path split across two output chunks is still caught
// without rescanning the whole buffer on every chunk.
const planWindowSize = 1000

// planPathRegex recognizes plan file paths the way agents print them:
// a markdown file whose name or parent directory mentions "plan".
var planPathRegex = regexp.MustCompile(`(?i)(?:[A-Za-z0-9_~.-]+/)*(?:plans?/[A-Za-z0-9_.-]+|[A-Za-z0-9_.-]*plan[A-Za-z0-9_.-]*)\.md\b`)

// planScanner scans incoming agent output for plan file paths over a
// bounded rolling window, reporting each distinct path at most once per
// session so a path repeated in every subsequent chunk is not
// re-announced.
type planScanner struct {
	mu     sync.Mutex
	window []byte
	seen   map[string]struct{}
	report func(path string)
}

func newPlanScanner(report func(path string)) *planScanner {
	return &planScanner{
		seen:   make(map[string]struct{}),
		report: report,
	}
}

// scan ingests one output chunk. Matches are reported outside the lock.
func (ps *planScanner) scan(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	ps.mu.Lock()
	ps.window = append(ps.window, chunk...)
	if len(ps.window) > planWindowSize {
		ps.window = ps.window[len(ps.window)-planWindowSize:]
	}

	var fresh []string
	for _, m := range planPathRegex.FindAllString(string(ps.window), -1) {
		if _, ok := ps.seen[m]; ok {
			continue
		}
		ps.seen[m] = struct{}{}
		fresh = append(fresh, m)
	}
	report := ps.report
	ps.mu.Unlock()

	if report != nil {
		for _, path := range fresh {
			report(path)
		}
	}
}

// reset clears the window and the seen set. Used on session restart.
func (ps *planScanner) reset() {
	ps.mu.Lock()
	ps.window = nil
	ps.seen = make(map[string]struct{})
	ps.mu.Unlock()
}
