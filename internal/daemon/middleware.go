package daemon

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"trashcan/internal/logging"
)

const requestIDHeader = "X-Request-ID"

func (s *apiServer) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logging.ErrorWithContext(s.logger, "panic recovered", "api_panic",
					logging.String("error", fmt.Sprintf("%v", recovered)),
					logging.String("stack", string(debug.Stack())),
					logging.String(logging.FieldImpact, "request failed"),
					logging.String(logging.FieldErrorHint, "report the stack trace"),
				)
				s.writeError(w, http.StatusInternalServerError, "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := logging.WithRequestID(r.Context(), requestID)
		started := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		logger := logging.WithContext(ctx, s.logger)
		attrs := logging.Args(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", wrapped.status),
			logging.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
		switch {
		case wrapped.status >= 500:
			logger.Error("api request", attrs...)
		case wrapped.status >= 400:
			logger.Warn("api request", attrs...)
		default:
			logger.Debug("api request", attrs...)
		}
	})
}

// throttle answers 429 once limiter runs out of tokens.
func (s *apiServer) throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				s.writeError(w, http.StatusTooManyRequests, "too many requests, retry shortly")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.status = statusCode
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
