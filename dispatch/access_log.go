package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/twine"
	"github.com/advdv/twine/vhost"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id the access log assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// AccessLog writes one entry per request to logs. A valid UUID in the request's X-Request-Id header is
// kept, otherwise a new one is generated. Either way it is echoed on the response.
func AccessLog(logs *zap.Logger, domains *vhost.Store) twine.Middleware {
	return func(next twine.BareHandler) twine.BareHandler {
		return twine.BareHandlerFunc(func(w twine.ResponseWriter, r *http.Request) error {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

			sw := &statusWriter{ResponseWriter: w, id: id}
			err := next.ServeBareBHTTP(sw, r)

			status := sw.status
			switch {
			case err != nil && !sw.Flushed():
				status = twine.StatusOf(err)
			case status == 0:
				status = http.StatusOK
			}

			logs.Info("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.String("domain", domains.Load().ByHostHeaderOrDefault(r.Host).Name),
				zap.String("remote", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", id))

			return err
		})
	}
}

// statusWriter remembers the status written. It keeps the request id header across resets.
type statusWriter struct {
	twine.ResponseWriter
	status int
	id     string
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}

	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Reset() {
	w.status = 0
	w.ResponseWriter.Reset()
	w.Header().Set(RequestIDHeader, w.id)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
