package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type annotationsKey struct{}

type annotations struct {
	mu     sync.Mutex
	fields map[string]string
}

// Annotate attaches key=value to the request's completion log line, e.g. the
// setup run id. It is a no-op outside RequestLogger.
func Annotate(ctx context.Context, key, value string) {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.fields[key] = value
	a.mu.Unlock()
}

// RequestLogger returns a middleware that logs each request and stores a
// request-scoped logger in the context for handlers (zerolog.Ctx). Client
// errors log at warn, server errors at error.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := middleware.GetReqID(r.Context())
			reqLogger := logger.With().Str("request_id", reqID).Logger()
			ann := &annotations{fields: make(map[string]string)}
			ctx := context.WithValue(r.Context(), annotationsKey{}, ann)
			r = r.WithContext(reqLogger.WithContext(ctx))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			var ev *zerolog.Event
			switch {
			case ww.status >= http.StatusInternalServerError:
				ev = reqLogger.Error()
			case ww.status >= http.StatusBadRequest:
				ev = reqLogger.Warn()
			default:
				ev = reqLogger.Info()
			}

			ann.mu.Lock()
			for k, v := range ann.fields {
				ev = ev.Str(k, v)
			}
			ann.mu.Unlock()

			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
