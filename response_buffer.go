package twine

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrBufferFull is returned when a write would grow the buffer past its limit.
var ErrBufferFull = errors.New("twine: response buffer is full")

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// ResponseBuffer is a [ResponseWriter] that holds the status, headers and body in memory until the buffer
// is flushed. Once flushed explicitly (through [http.ResponseController] or [ResponseBuffer.FlushError]) the
// response is committed: further writes go straight to the underlying writer and it can no longer be reset.
type ResponseBuffer struct {
	resp   http.ResponseWriter
	header http.Header
	buf    *bytes.Buffer
	limit  int

	status      int
	wroteHeader bool
	sentHeader  bool
	flushed     bool
}

// NewResponseWriter wraps resp in a buffered [ResponseWriter]. A negative limit disables the size limit.
func NewResponseWriter(resp http.ResponseWriter, limit int) ResponseWriter {
	return newBufferResponse(resp, limit)
}

func newBufferResponse(resp http.ResponseWriter, limit int) *ResponseBuffer {
	buf, _ := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	return &ResponseBuffer{
		resp:   resp,
		header: http.Header{},
		buf:    buf,
		limit:  limit,
		status: http.StatusOK,
	}
}

// Header returns the buffered headers. They are copied onto the underlying writer when the header is sent.
func (w *ResponseBuffer) Header() http.Header {
	if w.sentHeader {
		return w.resp.Header()
	}

	return w.header
}

// WriteHeader records the status code. Only the first call has an effect, like the standard library.
func (w *ResponseBuffer) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}

	w.wroteHeader = true
	w.status = status

	if w.flushed {
		w.sendHeader()
	}
}

// Write appends to the buffer, or writes through when the response was committed.
func (w *ResponseBuffer) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	if w.flushed {
		n, err := w.resp.Write(p)
		if err != nil {
			return n, errors.Wrap(err, "write through")
		}

		return n, nil
	}

	if w.limit >= 0 && w.buf.Len()+len(p) > w.limit {
		return 0, ErrBufferFull
	}

	return w.buf.Write(p)
}

// Unwrap returns the underlying writer, for use by [http.ResponseController].
func (w *ResponseBuffer) Unwrap() http.ResponseWriter {
	return w.resp
}

// Flushed reports whether (part of) the response already reached the underlying writer.
func (w *ResponseBuffer) Flushed() bool {
	return w.flushed || w.sentHeader
}

// Reset discards the buffered status, headers and body. It panics when the response was already flushed.
func (w *ResponseBuffer) Reset() {
	if w.Flushed() {
		panic("twine: cannot reset response, already flushed")
	}

	w.buf.Reset()
	w.header = http.Header{}
	w.status = http.StatusOK
	w.wroteHeader = false
}

// FlushError commits the response and flushes it to the client.
func (w *ResponseBuffer) FlushError() error {
	w.flushed = true
	if err := w.FlushBuffer(); err != nil {
		return err
	}

	if err := http.NewResponseController(w.resp).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return errors.Wrap(err, "flush underlying")
	}

	return nil
}

// FlushBuffer writes the buffered header and body to the underlying writer.
func (w *ResponseBuffer) FlushBuffer() error {
	w.sendHeader()

	if w.buf.Len() < 1 {
		return nil
	}

	_, err := w.buf.WriteTo(w.resp)
	if err != nil {
		return errors.Wrap(err, "write buffer")
	}

	return nil
}

// Free returns the buffer to the pool. The writer must not be used afterwards.
func (w *ResponseBuffer) Free() {
	if w.buf == nil {
		return
	}

	w.buf.Reset()
	bufPool.Put(w.buf)
	w.buf = new(bytes.Buffer)
}

func (w *ResponseBuffer) sendHeader() {
	if w.sentHeader {
		return
	}

	w.sentHeader = true

	dst := w.resp.Header()
	for k, v := range w.header {
		dst[k] = v
	}

	w.resp.WriteHeader(w.status)
}
