package luascript_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/advdv/twine/pipeline"
	"github.com/advdv/twine/pipeline/luascript"
	"github.com/advdv/twine/vhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindings(t *testing.T) (*pipeline.Bindings, *httptest.ResponseRecorder) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "footer.html"), []byte("<footer/>"), 0o600))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://www.example.test/blog/index.html?page=2", nil)
	req.Header.Set("Accept-Language", "nl")

	return &pipeline.Bindings{
		Domain:       &vhost.Domain{Name: "example", Hostnames: []string{"www.example.test", "example.test"}, Root: root + "/"},
		DocumentName: "index.html",
		Request:      req,
		Response:     rec,
		Out:          pipeline.NewOutput(root+"/", pipeline.DefaultScriptMarker),
	}, rec
}

func TestEvaluateOutput(t *testing.T) {
	for _, tt := range []struct {
		name string
		src  string
		want string
	}{
		{"append", `out.append("a", "ignored") out.append(1 + 1)`, "a2"},
		{"colon calls", `out:append("x") out:br() out:escape("<y>")`, "x<br/>&lt;y&gt;"},
		{"escape", `out.escape('a & "b"')`, "a &amp; &quot;b&quot;"},
		{"include", `out.include("footer.html")`, "<footer/>"},
		{"include escaped", `out:include("/../footer.html", true)`, "&lt;footer/&gt;"},
		{"domain", `out.append(domain.name .. " " .. domain.hostnames[2])`, "example example.test"},
		{"document", `out.append(document.name)`, "index.html"},
		{"request", `out.append(request.method .. " " .. request.path .. "?" .. request.query .. " " .. request.host)`,
			"GET /blog/index.html?page=2 www.example.test"},
		{"request header", `out.append(request.header("accept-language"))`, "nl"},
		{"libraries", `out.append(string.upper("x") .. table.concat({1, 2}, ",") .. math.max(3, 4))`, "X1,24"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := bindings(t)
			require.NoError(t, luascript.New().Evaluate(context.Background(), tt.src, b))
			assert.Equal(t, tt.want, b.Out.String())
		})
	}
}

func TestEvaluateResponse(t *testing.T) {
	b, rec := bindings(t)
	require.NoError(t, luascript.New().Evaluate(context.Background(),
		`response.header("X-Generated", "lua") response.status(201)`, b))

	assert.Equal(t, "lua", rec.Header().Get("X-Generated"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEvaluateErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		src  string
		want string
	}{
		{"raised", `error("no such page")`, "no such page"},
		{"syntax", `out.append(`, "lua"},
		{"no dofile", `dofile("/etc/passwd")`, "lua"},
		{"no require", `require("os")`, "lua"},
		{"no os library", `os.exit(1)`, "lua"},
		{"include missing", `out.include("nope.html")`, "include"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := bindings(t)
			err := luascript.New().Evaluate(context.Background(), tt.src, b)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEvaluateStopsWithContext(t *testing.T) {
	b, _ := bindings(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.Error(t, luascript.New().Evaluate(ctx, `while true do end`, b))
}

func TestEvaluateWithPipeline(t *testing.T) {
	b, rec := bindings(t)

	p := pipeline.New(pipeline.WithScripting(luascript.New()))
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	doc, err := p.Process(context.Background(),
		pipeline.DefaultScriptMarker+"\n<h1><?lua out.escape(domain.name) ?></h1><?lua out.include('footer.html') ?>",
		"index.html", "html", b.Domain, rec, b.Request)
	require.NoError(t, err)
	assert.Equal(t, "<h1>example</h1><footer/>", doc.Content)
}
