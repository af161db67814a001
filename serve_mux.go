package twine

import (
	"context"
	"net/http"
)

// ServeMux is an HTTP multiplexer with buffered responses and error handling.
type ServeMux struct {
	logs        Logger
	bufLimit    int
	mux         *http.ServeMux
	middlewares struct {
		captured bool
		buffered []Middleware
	}
}

// NewServeMux creates a new ServeMux with default settings.
func NewServeMux() *ServeMux {
	return NewServeMuxWith(-1, NewZapLogger(nil), http.NewServeMux())
}

// NewServeMuxWith creates a ServeMux with custom settings.
func NewServeMuxWith(bufLimit int, logger Logger, baseMux *http.ServeMux) *ServeMux {
	return &ServeMux{
		bufLimit: bufLimit,
		logs:     logger,
		mux:      baseMux,
	}
}

// Use allows providing of middleware.
func (m *ServeMux) Use(mw ...Middleware) {
	m.ensureNoUseAfterHandle()
	m.middlewares.buffered = append(m.middlewares.buffered, mw...)
}

// HandleFunc handles the request given the pattern using a function.
func (m *ServeMux) HandleFunc(pattern string, handler HandlerFunc) {
	m.Handle(pattern, handler)
}

// HandleStd registers a standard library [http.Handler] for the given pattern. Middleware
// registered via [ServeMux.Use] is applied. The handler owns its errors: whatever it writes is sent.
func (m *ServeMux) HandleStd(pattern string, handler http.Handler) {
	m.Handle(pattern, HandlerFunc(func(_ context.Context, w ResponseWriter, r *http.Request) error {
		handler.ServeHTTP(w, r)
		return nil
	}))
}

// Handle handles the request given a handler.
func (m *ServeMux) Handle(pattern string, handler Handler) {
	m.middlewares.captured = true
	m.mux.Handle(pattern, ToStd(
		Wrap(handler, m.middlewares.buffered...),
		m.bufLimit,
		m.logs,
	))
}

// ServeHTTP makes the server mux implement the http.Handler interface.
func (m *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

func (m *ServeMux) ensureNoUseAfterHandle() {
	if m.middlewares.captured {
		panic("twine: cannot call Use() after calling Handle")
	}
}
