// Package dispatch serves requests from the virtual host document roots. Per request it picks the domain
// by Host header, applies its CORS headers, finds the document for the path and either runs it through the
// document pipeline or streams it from disk. Missing documents take the not-found flow, failures the error
// flow.
package dispatch

import (
	"context"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/advdv/twine"
	"github.com/advdv/twine/pipeline"
	"github.com/advdv/twine/probe"
	"github.com/advdv/twine/static"
	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultContentType is set on processed documents when no stage chose a content type.
const DefaultContentType = "text/html;charset=UTF-8"

// Fallback bodies, sent when the domain's own documents are missing or broken.
const (
	NotFoundBody      = "Not found"
	InternalErrorBody = "Internal error"
)

// Outcomes by which requests are counted.
const (
	OutcomeProcessed  = "processed"
	OutcomeStatic     = "static"
	OutcomeNotFound   = "not_found"
	OutcomeRangeError = "range_error"
	OutcomeError      = "error"
)

// Option configures a [Handler].
type Option func(*Handler)

// WithLogger logs failures to logs.
func WithLogger(logs *zap.Logger) Option {
	return func(h *Handler) { h.logs = logs }
}

// WithMetrics counts requests in m.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithFS probes candidates on fsys instead of the local disk.
func WithFS(fsys probe.FS) Option {
	return func(h *Handler) { h.fsys = fsys }
}

// Handler implements [twine.Handler] over the domains in a store.
type Handler struct {
	domains  *vhost.Store
	pipeline *pipeline.Pipeline
	sender   *static.Sender
	fsys     probe.FS
	logs     *zap.Logger
	metrics  *Metrics
}

// New creates the handler. It freezes pl: stages and extensions must be registered before.
func New(domains *vhost.Store, pl *pipeline.Pipeline, sender *static.Sender, opts ...Option) *Handler {
	h := &Handler{
		domains:  domains,
		pipeline: pl,
		sender:   sender,
		fsys:     probe.OSFS{},
		logs:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.logs = h.logs.Named("dispatch")
	pl.Freeze()

	return h
}

var _ twine.Handler = (*Handler)(nil)

// ServeBHTTP runs the main flow and turns any failure into the error flow. A range that cannot be satisfied
// is already answered with 416 and only logged.
func (h *Handler) ServeBHTTP(ctx context.Context, w twine.ResponseWriter, r *http.Request) error {
	start := time.Now()
	d := h.domain(r)

	outcome, err := h.serveMain(ctx, w, r, d)
	if err != nil {
		var rerr *static.RangeError
		if errors.As(err, &rerr) {
			outcome = OutcomeRangeError
			h.logs.Debug("unsatisfiable range", zap.Error(err), zap.String("path", r.URL.Path))
		} else {
			outcome = OutcomeError
			h.serveError(ctx, w, r, d, err)
		}
	}

	h.metrics.observe(outcome, time.Since(start))

	return nil
}

// Main serves the document for the request path, or takes the not-found flow.
func (h *Handler) Main(ctx context.Context, w twine.ResponseWriter, r *http.Request) error {
	_, err := h.serveMain(ctx, w, r, h.domain(r))
	return err
}

func (h *Handler) serveMain(ctx context.Context, w twine.ResponseWriter, r *http.Request, d *vhost.Domain) (string, error) {
	ApplyCORS(w.Header(), r, d.CORS)

	// the path is decoded by net/http already, cleaning keeps it below the root
	candidates := probe.Candidates(path.Clean("/"+r.URL.Path), d, h.pipeline.ProcessableExtensions())

	hit, found, err := probe.Resolve(ctx, h.fsys, candidates)
	if err != nil {
		return OutcomeError, errors.Wrap(err, "resolve")
	}

	if !found {
		return OutcomeNotFound, h.serveNotFound(ctx, w, r, d)
	}

	return h.serveDocument(ctx, w, r, d, hit.Path, http.StatusOK)
}

// NotFound answers with the domain's not-found document and status 404, or 200 for domains that ignore
// 404s. Without such a document it sends a short plain text body.
func (h *Handler) NotFound(ctx context.Context, w twine.ResponseWriter, r *http.Request) error {
	return h.serveNotFound(ctx, w, r, h.domain(r))
}

func (h *Handler) serveNotFound(ctx context.Context, w twine.ResponseWriter, r *http.Request, d *vhost.Domain) error {
	status := http.StatusNotFound
	if d.Ignore404 {
		status = http.StatusOK
	}

	hit, found, err := probe.Resolve(ctx, h.fsys, []string{d.Path(d.NotFound)})
	if err != nil {
		return errors.Wrap(err, "resolve not found document")
	}

	if !found {
		w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
		w.WriteHeader(status)
		_, err := io.WriteString(w, NotFoundBody)
		return errors.Wrap(err, "write not found")
	}

	_, err = h.serveDocument(ctx, w, r, d, hit.Path, status)

	return err
}

// Error logs cause and replaces the response with the domain's server error document, sent as is with
// status 500. When that fails too, a short plain text body is sent if nothing was committed yet.
func (h *Handler) Error(ctx context.Context, w twine.ResponseWriter, r *http.Request, cause error) {
	h.serveError(ctx, w, r, h.domain(r), cause)
}

func (h *Handler) serveError(ctx context.Context, w twine.ResponseWriter, r *http.Request, d *vhost.Domain, cause error) {
	logs := h.logs.With(
		zap.String("domain", d.Name),
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestID(ctx)))

	logs.Error("request failed", zap.Error(cause))

	if w.Flushed() {
		return
	}

	w.Reset()
	ApplyCORS(w.Header(), r, d.CORS)

	err := h.sender.SendStatus(ctx, w, r, d.Path(d.ServerError), http.StatusInternalServerError)
	if err == nil {
		return
	}

	logs.Warn("server error document failed", zap.Error(err))

	if w.Flushed() {
		return
	}

	w.Reset()
	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, InternalErrorBody)
}

func (h *Handler) serveDocument(
	ctx context.Context, w twine.ResponseWriter, r *http.Request, d *vhost.Domain, file string, status int,
) (string, error) {
	if !h.pipeline.IsProcessable(file) {
		return OutcomeStatic, h.sender.SendStatus(ctx, w, r, file, status)
	}

	doc, err := h.pipeline.ProcessFile(ctx, file, d, w, r)
	if err != nil {
		return OutcomeError, errors.Wrapf(err, "process %s", file)
	}

	if doc.Ended() {
		return OutcomeProcessed, nil
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", DefaultContentType)
	}

	w.WriteHeader(status)
	if _, err := io.WriteString(w, doc.Content); err != nil {
		return OutcomeError, errors.Wrap(err, "write document")
	}

	return OutcomeProcessed, nil
}

func (h *Handler) domain(r *http.Request) *vhost.Domain {
	return h.domains.Load().ByHostHeaderOrDefault(r.Host)
}
