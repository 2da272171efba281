package server

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the session cookie
	CookieName = "clara_session"
	// DefaultCookieMaxAge applies when no session TTL is configured
	DefaultCookieMaxAge = 30 * time.Minute
)

func newSessionCookie(sessionID string, secure bool, maxAge time.Duration) *http.Cookie {
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
}

// SetSessionCookie sets an HTTP-only session cookie that expires with the
// session's idle timeout
func SetSessionCookie(w http.ResponseWriter, sessionID string, secure bool, maxAge time.Duration) {
	http.SetCookie(w, newSessionCookie(sessionID, secure, maxAge))
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	c := newSessionCookie("", secure, time.Second)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// GetSessionCookie reads the session ID from the cookie
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
