package controller

import "sync"

// RecentOutputFunc reads the last n lines of a session's output.
type RecentOutputFunc func(n int) string

// The registry maps session keys to recent-output accessors so external
// consumers (web handlers, keyboard-shortcut supervisors) can read agent
// output without a render handle. Mutation happens on session open/close;
// the RWMutex makes it safe for multi-goroutine hosts.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]RecentOutputFunc)
)

func registerRecentOutput(key string, fn RecentOutputFunc) {
	registryMu.Lock()
	registry[key] = fn
	registryMu.Unlock()
}

func deregisterRecentOutput(key string) {
	registryMu.Lock()
	delete(registry, key)
	registryMu.Unlock()
}

// RecentOutput returns the last n lines for a registered agent session.
// A stale key (session closed, or never an agent channel) reports
// ok=false rather than erroring.
func RecentOutput(key string, n int) (string, bool) {
	registryMu.RLock()
	fn := registry[key]
	registryMu.RUnlock()
	if fn == nil {
		return "", false
	}
	return fn(n), true
}

// RegisteredSessions lists the keys currently in the registry.
func RegisteredSessions() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
