package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"corsserve/logger"

	"github.com/google/uuid"
)

// CORS response headers attached to every reply
const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type"
)

// CORSMiddleware sets the CORS headers before anything downstream can write,
// so success, error and preflight responses all carry them.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", AllowOrigin)
		h.Set("Access-Control-Allow-Methods", AllowMethods)
		h.Set("Access-Control-Allow-Headers", AllowHeaders)
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware tags the request with an ID and logs one line per response
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)

		ctx := logger.ContextWithRequestID(r.Context(), id)
		r = r.WithContext(ctx)
		tw := newTrackingWriter(w)

		// Deferred so aborted responses are logged too
		defer func() {
			props := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      tw.Status(),
				"bytes":       tw.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote":      r.RemoteAddr,
			}
			log := s.log.WithContext(ctx)
			if tw.Status() >= http.StatusInternalServerError {
				log.Error("Request failed", props)
				return
			}
			log.Info("Request served", props)
		}()

		next.ServeHTTP(tw, r)
	})
}

// RecoverMiddleware turns a handler panic into a 500 so one bad request
// cannot take the connection loop down with it
func (s *Server) RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := newTrackingWriter(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.WithContext(r.Context()).Error("Handler panic", map[string]interface{}{
				"error": fmt.Sprint(rec),
				"path":  r.URL.Path,
				"stack": string(debug.Stack()),
			})
			if tw.wroteHeader {
				// Too late for a clean status; drop the connection
				panic(http.ErrAbortHandler)
			}
			SendInternalServerError(tw)
		}()

		next.ServeHTTP(tw, r)
	})
}

// trackingWriter records status and size for logging and error handling
type trackingWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func newTrackingWriter(w http.ResponseWriter) *trackingWriter {
	if tw, ok := w.(*trackingWriter); ok {
		return tw
	}
	return &trackingWriter{ResponseWriter: w}
}

func (t *trackingWriter) WriteHeader(code int) {
	if !t.wroteHeader && code >= 200 {
		t.status = code
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.ResponseWriter.Write(b)
	t.bytes += int64(n)
	return n, err
}

// Status returns the status sent, 200 if the handler wrote nothing
func (t *trackingWriter) Status() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}

// Unwrap exposes the underlying writer to http.ResponseController
func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

// Flush forwards to the underlying writer when it supports flushing
func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
