// Package twine is the HTTP core of a virtual host document server.
//
// # Overview
//
// Handlers write to a buffered [ResponseWriter] and return errors. As long as nothing was flushed the
// whole response can be thrown away and replaced, which is what the error path does: the buffer is
// reset and the status of the error ([StatusOf]) is sent instead.
//
//	mux := twine.NewServeMux()
//	mux.HandleFunc("GET /", func(ctx context.Context, w twine.ResponseWriter, r *http.Request) error {
//	    page, err := render(r.URL.Path)
//	    if err != nil {
//	        return twine.NewError(twine.CodeNotFound, err)
//	    }
//	    _, err = io.WriteString(w, page)
//	    return err
//	})
//
// # Buffered Response Writer
//
// Writes are held until the handler returns or the buffer limit is reached. An explicit flush through
// http.ResponseController commits the response; from then on writes go straight to the client. Large
// static files use that to stream without being buffered.
//
//   - [ResponseWriter.Reset] clears the buffer and headers for a fresh response
//   - [ResponseWriter.FlushBuffer] writes buffered content to the underlying writer
//   - [ResponseWriter.Flushed] reports whether the response was committed
//
// # Middleware
//
// [Middleware] wraps a [BareHandler] and sees the request and the returned error. [Recover] turns
// panics into errors. Middleware is registered with [ServeMux.Use] before any handler.
//
// # Packages
//
// The document server itself is split over the sub packages:
//
//   - vhost: the domain registry, which domain serves a hostname
//   - probe: resolution of a request path to a file on disk
//   - pipeline: the staged document processor and its script stage
//   - static: range aware file sending
//   - dispatch: the handlers that tie these together
//   - config: the configuration file and its reload watcher
//   - app: the runnable fx application
package twine
