package pipeline

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
)

// Script delimiters used unless configured otherwise.
const (
	DefaultScriptMarker = "<!--TES-->"
	DefaultScriptOpen   = "<?lua"
	DefaultScriptClose  = "?>"
)

// Evaluator runs the source of one script block. Whatever the script produces goes to b.Out.
type Evaluator interface {
	Evaluate(ctx context.Context, src string, b *Bindings) error
}

// EvaluatorFunc adapts a function to an [Evaluator].
type EvaluatorFunc func(ctx context.Context, src string, b *Bindings) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, src string, b *Bindings) error {
	return f(ctx, src, b)
}

// Bindings is what a script block can see.
type Bindings struct {
	Domain       *vhost.Domain
	DocumentName string
	Request      *http.Request
	Response     http.ResponseWriter
	Out          *Output
}

// Output accumulates the text that replaces a script block.
type Output struct {
	root   string
	marker string
	sb     strings.Builder
}

// NewOutput returns an output that includes files from root.
func NewOutput(root, marker string) *Output {
	return &Output{root: root, marker: marker}
}

// Append writes s as is.
func (o *Output) Append(s string) { o.sb.WriteString(s) }

// AppendEscaped writes s with &, <, > and " escaped.
func (o *Output) AppendEscaped(s string) { o.sb.WriteString(Escape(s)) }

// Br writes a line break element.
func (o *Output) Br() { o.sb.WriteString("<br/>") }

func (o *Output) String() string { return o.sb.String() }

// Include writes the file at name, relative to the domain root. A directory includes every file below
// it, in directory listing order. Script markers at the start of included files are dropped.
func (o *Output) Include(name string, escape bool) error {
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	return o.include(filepath.Join(o.root, filepath.FromSlash(rel)), escape)
}

func (o *Output) include(p string, escape bool) error {
	info, err := os.Stat(p)
	if err != nil {
		return errors.Wrap(err, "include")
	}

	if info.IsDir() {
		entries, err := os.ReadDir(p)
		if err != nil {
			return errors.Wrap(err, "include directory")
		}

		for _, e := range entries {
			if err := o.include(filepath.Join(p, e.Name()), escape); err != nil {
				return err
			}
		}

		return nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return errors.Wrap(err, "include file")
	}

	content := strings.TrimPrefix(string(data), o.marker)
	if escape {
		content = Escape(content)
	}

	o.sb.WriteString(content)

	return nil
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Escape replaces the characters that are special in HTML text and attribute values.
func Escape(s string) string { return escaper.Replace(s) }

type scripting struct {
	eval         Evaluator
	marker       string
	open, close  string
	exposeErrors bool
}

// stripMarker removes the marker and the line break right after it. It reports false when the content
// is not script enabled.
func (s *scripting) stripMarker(content string) (string, bool) {
	if !strings.HasPrefix(content, s.marker) {
		return content, false
	}

	content = content[len(s.marker):]
	if strings.HasPrefix(content, "\r\n") {
		return content[2:], true
	}

	return strings.TrimPrefix(content, "\n"), true
}

// run replaces every complete block in doc.Content with the output of evaluating it. An unterminated
// block is left in place.
func (s *scripting) run(ctx context.Context, doc *Document) error {
	content, ok := s.stripMarker(doc.Content)
	if !ok {
		return nil
	}

	root := ""
	if doc.Domain != nil {
		root = doc.Domain.Root
	}

	var out strings.Builder
	for block := 0; ; block++ {
		start := strings.Index(content, s.open)
		if start < 0 {
			break
		}

		end := strings.Index(content[start+len(s.open):], s.close)
		if end < 0 {
			break
		}

		src := content[start+len(s.open) : start+len(s.open)+end]
		out.WriteString(content[:start])
		content = content[start+len(s.open)+end+len(s.close):]

		b := &Bindings{
			Domain:       doc.Domain,
			DocumentName: doc.Name,
			Request:      doc.Request,
			Response:     doc.Response,
			Out:          NewOutput(root, s.marker),
		}

		if err := s.eval.Evaluate(ctx, strings.TrimSpace(src), b); err != nil {
			if !s.exposeErrors {
				return errors.WithStack(&ScriptError{Document: doc.Name, Block: block, Err: err})
			}

			out.WriteString(err.Error())
			continue
		}

		out.WriteString(b.Out.String())
	}

	out.WriteString(content)
	doc.Content = out.String()

	return nil
}
