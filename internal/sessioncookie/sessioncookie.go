// Package sessioncookie centralizes session cookie behavior.
package sessioncookie

import (
	"net/http"
	"strings"
	"time"
)

// Config describes the session cookie. A zero MaxAge makes it a browser
// session cookie.
type Config struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Read returns the trimmed session cookie value when present.
func (c Config) Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Write sets the session cookie.
func (c Config) Write(w http.ResponseWriter, value string) {
	if w == nil {
		return
	}
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    strings.TrimSpace(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.MaxAge > 0 {
		cookie.MaxAge = int(c.MaxAge / time.Second)
	}
	http.SetCookie(w, cookie)
}

// Clear expires the session cookie.
func (c Config) Clear(w http.ResponseWriter) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Expiry returns the client-side expiry for a cookie written at now, or the
// zero time for a browser session cookie.
func (c Config) Expiry(now time.Time) time.Time {
	if c.MaxAge <= 0 {
		return time.Time{}
	}
	return now.Add(c.MaxAge)
}
