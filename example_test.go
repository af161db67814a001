package twine_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/advdv/twine"
	"github.com/cockroachdb/errors"
)

func Example() {
	pages := map[string]string{"/index.html": "<h1>home</h1>"}

	mux := twine.NewServeMux()
	mux.HandleFunc("GET /", func(_ context.Context, w twine.ResponseWriter, r *http.Request) error {
		page, ok := pages[r.URL.Path]
		if !ok {
			return twine.NewError(twine.CodeNotFound, errors.Newf("no page %s", r.URL.Path))
		}

		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		_, err := fmt.Fprint(w, page)

		return err
	})

	for _, p := range []string{"/index.html", "/missing.html"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		fmt.Println(p, rec.Code)
	}
	// Output:
	// /index.html 200
	// /missing.html 404
}

func ExampleServeMux_Use() {
	mux := twine.NewServeMux()
	mux.Use(func(next twine.BareHandler) twine.BareHandler {
		return twine.BareHandlerFunc(func(w twine.ResponseWriter, r *http.Request) error {
			w.Header().Set("Server", "twine")
			return next.ServeBareBHTTP(w, r)
		})
	})

	mux.HandleFunc("GET /ping", func(_ context.Context, w twine.ResponseWriter, _ *http.Request) error {
		fmt.Fprint(w, "pong")
		return nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	fmt.Println(rec.Body.String(), rec.Header().Get("Server"))
	// Output:
	// pong twine
}

func ExampleResponseWriter_Reset() {
	mux := twine.NewServeMux()
	mux.HandleFunc("GET /report.html", func(_ context.Context, w twine.ResponseWriter, _ *http.Request) error {
		fmt.Fprint(w, "<p>half a report")

		// nothing was flushed, the error page replaces the partial document
		w.Reset()
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "try again later")

		return nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report.html", nil))

	fmt.Println(rec.Code, rec.Body.String())
	// Output:
	// 503 try again later
}

func ExampleStatusOf() {
	err := twine.NewError(twine.CodeRequestedRangeNotSatisfiable, errors.New("bytes=900-100"))
	fmt.Println(twine.StatusOf(err))
	fmt.Println(twine.StatusOf(errors.Wrap(err, "send")))
	fmt.Println(twine.StatusOf(errors.New("disk on fire")))
	// Output:
	// 416
	// 416
	// 500
}
