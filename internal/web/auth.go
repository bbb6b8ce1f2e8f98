package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest checks the configured access token against the
// request. Without a configured token every request is allowed; the
// server binds to loopback by default.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	for _, candidate := range requestTokens(r) {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(s.cfg.Token)) == 1 {
			return true
		}
	}
	return false
}

// requestTokens extracts token candidates: ?token= query parameter
// (needed for websocket clients that cannot set headers) and the
// Authorization bearer header.
func requestTokens(r *http.Request) []string {
	var tokens []string
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		tokens = append(tokens, q)
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		if tok := strings.TrimSpace(rest); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
