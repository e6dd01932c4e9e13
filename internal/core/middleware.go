package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"upkeep/internal/types"
)

// requestIDHeader carries the client-supplied correlation ID; one is minted
// when absent.
const requestIDHeader = "X-Request-ID"

// responseCapture wraps an http.ResponseWriter to capture the status code
// written by downstream handlers, for the request logger.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, enabling
// http.ResponseController access to Flush and friends.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// RequestID attaches a correlation ID to the request context and echoes it
// on the response. Must run before any middleware that logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// RequestLogger logs request metadata (method, path, status, duration) with
// the request ID attached.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rc, r)

			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rc.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", types.GetRequestID(r.Context()),
			)
		})
	}
}

// Recoverer catches panics in the handler chain, logs the stack trace
// internally, and writes a standardized 500 to the client. Must be the
// outermost handler in the chain.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", fmt.Sprintf("%v", rvr),
						"stack", string(debug.Stack()),
					)

					resp := APIErrorResponse{
						Error: ErrorDetail{
							Code:      string(types.ErrCodeInternalUnexpected),
							Message:   "an unexpected error occurred",
							RequestID: types.GetRequestID(r.Context()),
						},
					}
					JSON(w, r, http.StatusInternalServerError, resp)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
