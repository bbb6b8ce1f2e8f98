package web

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

type sessionJSON struct {
	Key     string `json:"key"`
	Cwd     string `json:"cwd"`
	Command string `json:"command"`
	Agent   bool   `json:"agent"`
	Dead    bool   `json:"dead"`
	Status  string `json:"status"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	infos := s.host.Sessions()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	out := make([]sessionJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionJSON{
			Key:     info.Key,
			Cwd:     info.Cwd,
			Command: info.Command,
			Agent:   info.Agent,
			Dead:    info.Dead,
			Status:  string(info.Status),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleSessionRecent serves GET /api/session/{key}/recent?lines=N for
// agent channels.
func (s *Server) handleSessionRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	const prefix = "/api/session/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	key, ok := strings.CutSuffix(rest, "/recent")
	if !ok || key == "" || strings.Contains(key, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected /api/session/{key}/recent")
		return
	}

	lines := 100
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "lines must be a positive integer")
			return
		}
		lines = n
	}

	out, ok := s.host.ReadRecentOutput(key, lines)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "not an open agent session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"output": out,
	})
}
