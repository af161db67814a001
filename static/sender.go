// Package static streams files from disk with single byte range support.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotRegularFile is returned when asked to send something other than a regular file.
var ErrNotRegularFile = errors.New("not a regular file")

// MaxAge is the Cache-Control max-age of cached responses.
const MaxAge = 24 * time.Hour

// Sender writes files as HTTP responses.
type Sender struct {
	// Caching adds Date, Cache-Control and Last-Modified headers.
	Caching bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Send writes the file at path with status 200, or 206 when the request asks for a range.
func (s *Sender) Send(ctx context.Context, w http.ResponseWriter, r *http.Request, path string) error {
	return s.SendStatus(ctx, w, r, path, http.StatusOK)
}

// SendStatus writes the file at path with the given status. The Range header is only honoured when
// status is 200. A malformed or unsatisfiable range is answered with 416 and reported as a
// [*RangeError] once the response is written.
func (s *Sender) SendStatus(ctx context.Context, w http.ResponseWriter, r *http.Request, path string, status int) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send")
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	if !info.Mode().IsRegular() {
		return errors.Wrapf(ErrNotRegularFile, "send %s", path)
	}

	size := info.Size()
	hdr := w.Header()
	hdr.Set("Accept-Ranges", "bytes")
	hdr.Set("Vary", "accept-encoding")

	if s.Caching {
		hdr.Set("Date", s.now().UTC().Format(http.TimeFormat))
		hdr.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(MaxAge.Seconds())))
		hdr.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	}

	start, end := int64(0), size

	if rng := r.Header.Get("Range"); rng != "" && status == http.StatusOK {
		if start, end, err = ParseRange(rng, size); err != nil {
			hdr.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			hdr.Del("Content-Type")
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return err
		}

		status = http.StatusPartialContent
		hdr.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, size))
	}

	hdr.Set("Content-Type", MimeForFilename(info.Name()))
	hdr.Set("Content-Length", strconv.FormatInt(end-start, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}

	// the body goes straight out, so it must not be held by a buffering writer.
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return errors.Wrap(err, "flush headers")
	}

	if _, err := io.Copy(w, io.NewSectionReader(f, start, end-start)); err != nil {
		return errors.Wrap(err, "copy")
	}

	return nil
}

func (s *Sender) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}

	return s.Now()
}
