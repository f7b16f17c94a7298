package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cswank/store/pkg/logger"
)

const (
	// SessionCookie names the cookie holding the cart session.
	SessionCookie = "cart_session"
	// SessionHeader lets non-browser clients pick their session explicitly.
	SessionHeader = "X-Cart-Session"
)

type sessionKey struct{}

// CartSession resolves the cart session for the request. The header wins
// over the cookie; a missing or malformed ID gets a fresh one. The ID is
// echoed in both the cookie and the header.
func CartSession(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionFromRequest(r)
			if id == "" {
				id = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
			w.Header().Set(SessionHeader, id)

			ctx := WithSession(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); validSession(id) {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && validSession(c.Value) {
		return c.Value
	}
	return ""
}

func validSession(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// WithSession stores the cart session ID in ctx, for both handlers and logs.
func WithSession(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, id)
	return logger.WithSessionID(ctx, id)
}

// SessionFromContext returns the cart session ID set by CartSession.
func SessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}
