package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/service"
	"github.com/exmoboty/starter/internal/sessioncookie"
)

type contextKey string

const (
	userIDKey    contextKey = "userID"
	sessionIDKey contextKey = "sessionID"
)

// SessionToucher resolves a session id and rolls its expiry forward.
type SessionToucher interface {
	Touch(ctx context.Context, id string) (*model.Session, error)
}

// CookieCodec wraps and unwraps session ids for the cookie value.
type CookieCodec interface {
	Sign(sessionID string, expires time.Time) (string, error)
	Parse(value string) (string, error)
}

// LoadSession resolves the session cookie into a user ID on the request
// context. Requests without a usable session pass through anonymously and a
// stale cookie is cleared.
func LoadSession(cookie sessioncookie.Config, codec CookieCodec, sessions SessionToucher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value, ok := cookie.Read(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := codec.Parse(value)
			if err != nil {
				cookie.Clear(w)
				next.ServeHTTP(w, r)
				return
			}

			s, err := sessions.Touch(r.Context(), id)
			if err != nil {
				if errors.Is(err, service.ErrSessionNotFound) {
					cookie.Clear(w)
				} else {
					logger.ErrorContext(r.Context(), "load session", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			if cookie.MaxAge > 0 {
				if signed, err := codec.Sign(id, cookie.Expiry(time.Now())); err == nil {
					cookie.Write(w, signed)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), id, s.UserID)))
		})
	}
}

// RequireAuth redirects anonymous requests to loginPath.
func RequireAuth(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserIDFromContext(r.Context()); !ok {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectIfAuthenticated sends signed-in users to target.
func RedirectIfAuthenticated(target string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserIDFromContext(r.Context()); ok {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession stores the session and user IDs on ctx.
func WithSession(ctx context.Context, sessionID, userID string) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// SessionIDFromContext extracts the opaque session id from the request context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}
