package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// statusRecorder remembers what a handler answered so the middleware can
// label metrics with it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	// code is the errorResponse code written by writeError, if any.
	code string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// errorCoder is implemented by writers that want the error code of a
// failed request.
type errorCoder interface {
	setErrorCode(code string)
}

func (r *statusRecorder) setErrorCode(code string) { r.code = code }

// instrument records request count, latency and failures of endpoint.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		elapsed := time.Since(start)
		ms := float64(elapsed) / float64(time.Millisecond)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, ms)

		if rec.status < http.StatusBadRequest {
			return
		}
		code := rec.code
		if code == "" {
			code = "http_" + status
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		metrics.RecordErrorByType(code, severity(rec.status))
		metrics.RecordErrorLatency("http", code, ms)
		if rec.status >= http.StatusInternalServerError {
			s.log.Warn(r.Context(), "request failed",
				logger.String("endpoint", endpoint),
				logger.String("method", r.Method),
				logger.Int("status", rec.status),
				logger.String("code", code),
				logger.Duration("elapsed", elapsed))
		}
	}
}

// severity grades failed responses: upstream and server faults are high,
// caller mistakes medium.
func severity(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "high"
	case status == http.StatusTooManyRequests, status == http.StatusConflict:
		return "low"
	default:
		return "medium"
	}
}
