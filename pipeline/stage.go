package pipeline

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/advdv/twine/vhost"
)

// Tier decides where a stage runs: on the request goroutine or on the worker pool.
type Tier int

const (
	Immediate Tier = iota
	Deferred
)

func (t Tier) String() string {
	if t == Deferred {
		return "deferred"
	}

	return "immediate"
}

type outcomeKind int

const (
	advance outcomeKind = iota
	terminate
	fail
)

// Outcome tells the pipeline how to continue after a stage. The zero value advances.
type Outcome struct {
	kind outcomeKind
	err  error
}

// Advance continues with the next stage.
func Advance() Outcome { return Outcome{kind: advance} }

// Terminate finishes successfully without running the remaining stages of the tier (or of the whole
// pipeline, see [WithTerminateScope]).
func Terminate() Outcome { return Outcome{kind: terminate} }

// Fail stops the pipeline. err is reported as the result of processing the document.
func Fail(err error) Outcome { return Outcome{kind: fail, err: err} }

func (o Outcome) String() string {
	switch o.kind {
	case terminate:
		return "terminate"
	case fail:
		return "fail"
	default:
		return "advance"
	}
}

// Stage transforms a document.
type Stage interface {
	Name() string
	Process(ctx context.Context, doc *Document) Outcome
}

// StageFunc adapts a function to a [Stage].
type StageFunc func(ctx context.Context, doc *Document) Outcome

type namedStage struct {
	name string
	fn   StageFunc
}

func (s namedStage) Name() string { return s.name }
func (s namedStage) Process(ctx context.Context, doc *Document) Outcome {
	return s.fn(ctx, doc)
}

// Named returns fn as a stage called name.
func Named(name string, fn StageFunc) Stage { return namedStage{name: name, fn: fn} }

// Document is the processing context of one document. It belongs to the request that created it.
type Document struct {
	Content   string
	Name      string
	Extension string
	Domain    *vhost.Domain
	Request   *http.Request
	Response  http.ResponseWriter

	cursor int
	ended  bool
}

// Cursor is the index of the stage currently running within its tier.
func (d *Document) Cursor() int { return d.cursor }

// EndResponse records that a stage wrote the response itself. The processed content is then not
// written as the body.
func (d *Document) EndResponse() { d.ended = true }

// Ended reports whether a stage took over the response.
func (d *Document) Ended() bool { return d.ended }

// Replace substitutes every occurrence of old in the content.
func (d *Document) Replace(old, replacement string) {
	d.Content = strings.ReplaceAll(d.Content, old, replacement)
}

// ReplaceRegexp substitutes every match of re in the content, expanding $1 style references.
func (d *Document) ReplaceRegexp(re *regexp.Regexp, replacement string) {
	d.Content = re.ReplaceAllString(d.Content, replacement)
}
