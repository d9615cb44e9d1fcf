package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey int

const ctxKeyCallerID ctxKey = iota

func WithCallerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyCallerID, id)
}

// CallerID returns the authenticated user id placed by Middleware.
func CallerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyCallerID).(int64)
	return id, ok && id > 0
}

func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware rejects requests without a valid HS256 bearer token with 401.
func Middleware(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "token not provided")
				return
			}
			claims, err := ParseHS256(token, secret)
			if err != nil {
				if logger != nil {
					logger.Debug("token rejected", "err", err)
				}
				unauthorized(w, "token invalid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), claims.UserID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="gobarber"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
