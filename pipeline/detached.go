package pipeline

import (
	"bytes"
	"context"
	"maps"
	"net/http"
)

// recordedResponse collects what deferred stages write. It is replayed on the request's writer only
// when the request is still waiting for the result.
type recordedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recordedResponse) Header() http.Header { return r.header }

func (r *recordedResponse) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recordedResponse) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.body.Write(p)
}

// detach copies doc for the deferred tier. The copy shares nothing mutable with the request: it gets a
// cloned request on ctx and a recorded response that starts with the current headers.
func detach(ctx context.Context, doc *Document) (*Document, *recordedResponse) {
	rec := &recordedResponse{header: http.Header{}}
	if doc.Response != nil {
		rec.header = doc.Response.Header().Clone()
	}

	cp := *doc
	cp.Response = rec
	if doc.Request != nil {
		cp.Request = doc.Request.Clone(ctx)
	}

	return &cp, rec
}

// attach takes over the deferred result: content, cursor and end state, then the recorded headers, status
// and body on the request's writer.
func attach(doc, detached *Document, rec *recordedResponse) error {
	doc.Content, doc.cursor, doc.ended = detached.Content, detached.cursor, detached.ended
	if doc.Response == nil {
		return nil
	}

	hdr := doc.Response.Header()
	clear(hdr)
	maps.Copy(hdr, rec.header)

	if rec.status != 0 {
		doc.Response.WriteHeader(rec.status)
	}

	if rec.body.Len() > 0 {
		if _, err := doc.Response.Write(rec.body.Bytes()); err != nil {
			return err
		}
	}

	return nil
}
