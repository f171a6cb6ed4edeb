package auth

import (
	"net/http"
	"strings"
)

// ExtractToken implements a fixed extraction order: query parameter
// "token", then cookie "x-session-token", then the Authorization:
// Bearer header. The first present wins.
func ExtractToken(r *http.Request) (string, bool) {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	if cookie, err := r.Cookie("x-session-token"); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tok := strings.TrimPrefix(header, "Bearer ")
		if tok != "" {
			return tok, true
		}
	}
	return "", false
}
