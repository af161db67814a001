// Package pipeline transforms documents before they are served. Stages run in registration order, first
// the immediate tier on the request goroutine, then the deferred tier on a bounded worker pool, and
// finally the script stage for documents that start with the script marker.
package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// TerminateScope decides how far a stage returning [Terminate] reaches.
type TerminateScope int

const (
	// TerminateTier skips the rest of the current tier only. The next tier and the script stage
	// still run.
	TerminateTier TerminateScope = iota
	// TerminatePipeline skips everything that remains, the script stage included.
	TerminatePipeline
)

// ParseTerminateScope accepts "tier" and "pipeline".
func ParseTerminateScope(s string) (TerminateScope, error) {
	switch strings.ToLower(s) {
	case "", "tier":
		return TerminateTier, nil
	case "pipeline":
		return TerminatePipeline, nil
	default:
		return TerminateTier, errors.Newf("unknown terminate scope %q (supported: tier, pipeline)", s)
	}
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithWorkerPool runs deferred stages on pool. The caller owns the pool.
func WithWorkerPool(pool *WorkerPool) Option {
	return func(p *Pipeline) { p.pool = pool }
}

// WithScripting enables the script stage.
func WithScripting(ev Evaluator) Option {
	return func(p *Pipeline) { p.script.eval = ev }
}

// WithExposeScriptErrors renders the message of a failing script block in its place instead of failing
// the document.
func WithExposeScriptErrors(v bool) Option {
	return func(p *Pipeline) { p.script.exposeErrors = v }
}

// WithScriptDelimiters replaces the marker and block delimiters.
func WithScriptDelimiters(marker, open, close string) Option {
	return func(p *Pipeline) {
		p.script.marker, p.script.open, p.script.close = marker, open, close
	}
}

// WithTerminateScope sets how far [Terminate] reaches. The default is [TerminateTier].
func WithTerminateScope(s TerminateScope) Option {
	return func(p *Pipeline) { p.scope = s }
}

// WithLogger logs stage terminations and pool failures to logs.
func WithLogger(logs *zap.Logger) Option {
	return func(p *Pipeline) { p.logs = logs }
}

// WithMetrics records stage durations and processed documents in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracerProvider traces processing with a tracer from tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer("github.com/advdv/twine/pipeline") }
}

// Pipeline runs the registered stages over documents. Registration must be complete before the first
// document is processed.
type Pipeline struct {
	mu        sync.Mutex
	immediate []Stage
	deferred  []Stage
	exts      []string
	frozen    atomic.Bool

	pool     *WorkerPool
	ownsPool bool
	script   scripting
	scope    TerminateScope
	logs     *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// New creates a pipeline. Without [WithWorkerPool] it starts a pool of its own, released by Close.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		script: scripting{
			marker: DefaultScriptMarker,
			open:   DefaultScriptOpen,
			close:  DefaultScriptClose,
		},
		logs:   zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.pool == nil {
		p.pool = NewWorkerPool(p.logs, DefaultPoolConfig())
		p.ownsPool = true
	}

	p.logs = p.logs.Named("pipeline")

	return p
}

// Close stops the worker pool if the pipeline started it.
func (p *Pipeline) Close() error {
	if !p.ownsPool {
		return nil
	}

	return p.pool.Close(10 * time.Second)
}

// Register adds a stage to the end of its tier.
func (p *Pipeline) Register(stage Stage, tier Tier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureNotFrozen()

	if tier == Deferred {
		p.deferred = append(p.deferred, stage)
	} else {
		p.immediate = append(p.immediate, stage)
	}
}

// RegisterFunc registers fn under name.
func (p *Pipeline) RegisterFunc(name string, fn StageFunc, tier Tier) {
	p.Register(Named(name, fn), tier)
}

// RegisterProcessableExtension marks documents with the extension (without dot) for processing.
// Directory requests try index documents in the order extensions were registered.
func (p *Pipeline) RegisterProcessableExtension(ext string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureNotFrozen()

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || lo.Contains(p.exts, ext) {
		return
	}

	p.exts = append(p.exts, ext)
}

// ProcessableExtensions returns the extensions in registration order.
func (p *Pipeline) ProcessableExtensions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.exts...)
}

// IsProcessable reports whether the file name carries a processable extension.
func (p *Pipeline) IsProcessable(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ext != "" && lo.Contains(p.ProcessableExtensions(), ext)
}

// Freeze ends registration. Later registration panics.
func (p *Pipeline) Freeze() { p.frozen.Store(true) }

func (p *Pipeline) ensureNotFrozen() {
	if p.frozen.Load() {
		panic("pipeline: cannot register after the pipeline was frozen")
	}
}

// ProcessFile reads the document at path and processes it.
func (p *Pipeline) ProcessFile(
	ctx context.Context, path string, d *vhost.Domain, w http.ResponseWriter, r *http.Request,
) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}

	name := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	return p.Process(ctx, string(data), name, ext, d, w, r)
}

// Process runs content through the pipeline. The returned document holds the final content, and
// whether a stage ended the response itself. On failure only the error is returned.
func (p *Pipeline) Process(
	ctx context.Context, content, name, ext string, d *vhost.Domain, w http.ResponseWriter, r *http.Request,
) (doc *Document, err error) {
	p.mu.Lock()
	immediate, deferred := p.immediate, p.deferred
	p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("twine.document", name),
		attribute.Int("twine.stages.immediate", len(immediate)),
		attribute.Int("twine.stages.deferred", len(deferred)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		p.metrics.countDocument(err)
		span.End()
	}()

	doc = &Document{Content: content, Name: name, Extension: ext, Domain: d, Request: r, Response: w}

	stopped, err := p.runTier(ctx, doc, Immediate, immediate)
	if err != nil {
		return nil, err
	}

	if !stopped && len(deferred) > 0 {
		if stopped, err = p.runDeferred(ctx, doc, deferred); err != nil {
			return nil, err
		}
	}

	if stopped || p.script.eval == nil {
		return doc, nil
	}

	if err := p.script.run(ctx, doc); err != nil {
		return nil, errors.WithStack(&ProcessingError{Stage: "script", Tier: Immediate, Err: err})
	}

	return doc, nil
}

type tierResult struct {
	stopped bool
	err     error
}

// runDeferred hands a detached copy of the document to the pool and waits for it. Only a result that is
// waited for is copied back. When ctx ends first the work still runs to completion on its copy and the
// result is dropped.
func (p *Pipeline) runDeferred(ctx context.Context, doc *Document, stages []Stage) (bool, error) {
	done := make(chan tierResult, 1)
	detachedCtx := context.WithoutCancel(ctx)
	detached, rec := detach(detachedCtx, doc)

	if err := p.pool.Submit(ctx, func() {
		stopped, err := p.runTier(detachedCtx, detached, Deferred, stages)
		done <- tierResult{stopped, err}
	}); err != nil {
		return false, errors.Wrap(err, "deferred tier")
	}

	select {
	case res := <-done:
		if res.err != nil {
			return true, res.err
		}

		if err := attach(doc, detached, rec); err != nil {
			return true, errors.Wrap(err, "deferred tier response")
		}

		return res.stopped, nil
	case <-ctx.Done():
		return false, errors.Wrap(ctx.Err(), "waiting for deferred tier")
	}
}

// runTier runs stages in order. It reports whether processing should stop after this tier.
func (p *Pipeline) runTier(ctx context.Context, doc *Document, tier Tier, stages []Stage) (bool, error) {
	span := trace.SpanFromContext(ctx)

	for i, stage := range stages {
		doc.cursor = i

		start := time.Now()
		out := p.invoke(ctx, stage, doc)
		p.metrics.observeStage(stage.Name(), tier, out, time.Since(start))

		span.AddEvent("stage", trace.WithAttributes(
			attribute.String("twine.stage", stage.Name()),
			attribute.String("twine.tier", tier.String()),
			attribute.String("twine.outcome", out.String()),
		))

		switch out.kind {
		case terminate:
			p.logs.Debug("stage terminated",
				zap.String("stage", stage.Name()), zap.Stringer("tier", tier), zap.String("document", doc.Name))
			return p.scope == TerminatePipeline, nil
		case fail:
			err := out.err
			if err == nil {
				err = errors.New("stage failed without an error")
			}

			return true, errors.WithStack(&ProcessingError{Stage: stage.Name(), Tier: tier, Err: err})
		}
	}

	return false, nil
}

func (p *Pipeline) invoke(ctx context.Context, stage Stage, doc *Document) (out Outcome) {
	defer func() {
		if e := recover(); e != nil {
			out = Fail(errors.Newf("panic: %v", e))
		}
	}()

	return stage.Process(ctx, doc)
}
