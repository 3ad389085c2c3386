package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	sessionIDContextKey contextKey = "sessionID"
)

const (
	requestIDHeader = "X-Request-ID"
	sessionIDHeader = "X-Session-ID"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := headerOrNewID(r, requestIDHeader)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), requestID)))
	})
}

// sessionMiddleware resolves the caller's session, minting one when the
// client did not send X-Session-ID.
func sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := headerOrNewID(r, sessionIDHeader)
		w.Header().Set(sessionIDHeader, sessionID)
		next.ServeHTTP(w, r.WithContext(contextWithSessionID(r.Context(), sessionID)))
	})
}

func headerOrNewID(r *http.Request, header string) string {
	if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
		return id
	}
	return uuid.NewString()
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func contextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, id)
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}
