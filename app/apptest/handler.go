package apptest

import (
	"net/http"
	"net/http/httptest"

	"github.com/advdv/twine"
)

// CallHandler invokes a [twine.Handler] with a buffered response writer and returns the recorded
// response. It handles the boilerplate of wrapping [httptest.ResponseRecorder] in a
// [twine.ResponseWriter] and flushing the buffer afterward.
func CallHandler(handler twine.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	w := twine.NewResponseWriter(rec, -1)
	defer w.Free()

	if err := handler.ServeBHTTP(req.Context(), w, req); err != nil {
		panic("apptest: handler returned error: " + err.Error())
	}

	if err := w.FlushBuffer(); err != nil {
		panic("apptest: FlushBuffer failed: " + err.Error())
	}

	return rec
}
