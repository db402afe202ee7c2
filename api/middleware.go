package api

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/kit"
)

var traceID = idgen.Short(8)

// defaultStack is applied to every route: HeadToGet, SecurityHeaders,
// MaxJSONBody, TraceID.
func defaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders,
		MaxJSONBody(1 << 20),
		TraceID(logger),
	}
}

// HeadToGet serves HEAD requests through the GET routes.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the headers of a JSON API that is never framed.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// MaxJSONBody limits JSON request bodies. Uploaded recordings are bounded
// by their own handler.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") == "application/json" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TraceID tags each request with a short id, echoed in X-Trace-ID and
// carried by a per-request logger.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := traceID()
			w.Header().Set("X-Trace-ID", id)
			l := logger.With("trace_id", id, "method", r.Method, "path", r.URL.Path)
			l.Debug("api: request", "remote_addr", r.RemoteAddr)

			ctx := kit.WithLogger(kit.WithTraceID(r.Context(), id), l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
