package dispatch_test

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/advdv/twine"
	"github.com/advdv/twine/dispatch"
	"github.com/advdv/twine/pipeline"
	"github.com/advdv/twine/pipeline/luascript"
	"github.com/advdv/twine/probe"
	"github.com/advdv/twine/static"
	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func docroot(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	return root
}

type fixture struct {
	mux  *twine.ServeMux
	logs *observer.ObservedLogs
	reg  *prometheus.Registry
}

func setup(t *testing.T) *fixture {
	t.Helper()

	site := docroot(t, map[string]string{
		"index.html":      pipeline.DefaultScriptMarker + "\n<h1><?lua out.escape(domain.name) ?></h1>",
		"docs/index.htm":  "<p>docs</p>",
		"about.html":      "<p>about</p>",
		"broken.html":     "<p>never</p>",
		"moved.html":      "<p>moved</p>",
		"data.bin":        strings.Repeat("x", 1000),
		"404.html":        pipeline.DefaultScriptMarker + "<p>no such page on <?lua out.append(domain.name) ?></p>",
		"500.html":        "<p>sorry</p>",
		"styles/site.css": "body{}",
	})

	domains, err := vhost.NewFromDomains([]vhost.Domain{
		{Name: "site", Hostnames: []string{"site.test", "www.site.test"}, Root: site},
		{Name: "bare", Hostnames: []string{"bare.test"}, Root: docroot(t, map[string]string{
			"broken.html": "x",
		})},
		{Name: "lenient", Hostnames: []string{"lenient.test"}, Root: docroot(t, nil), Ignore404: true},
		{Name: "api", Hostnames: []string{"api.test"}, Root: docroot(t, map[string]string{"index.html": "{}"}),
			CORS: vhost.CORS{Enabled: true, AllowOrigin: vhost.RequestOrigin, AllowMethods: []string{"GET", "POST"}}},
	}, "site")
	require.NoError(t, err)

	pl := pipeline.New(pipeline.WithScripting(luascript.New()))
	t.Cleanup(func() { require.NoError(t, pl.Close()) })

	pl.RegisterProcessableExtension("html")
	pl.RegisterProcessableExtension("htm")
	pl.RegisterFunc("guard", func(_ context.Context, doc *pipeline.Document) pipeline.Outcome {
		switch doc.Name {
		case "broken.html":
			return pipeline.Fail(errors.New("broken document"))
		case "moved.html":
			http.Redirect(doc.Response, doc.Request, "/about.html", http.StatusFound)
			doc.EndResponse()
			return pipeline.Terminate()
		}

		return pipeline.Advance()
	}, pipeline.Immediate)

	core, logs := observer.New(zap.DebugLevel)
	reg := prometheus.NewRegistry()
	store := vhost.NewStore(domains)

	h := dispatch.New(store, pl, &static.Sender{},
		dispatch.WithLogger(zap.New(core)),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)))

	mux := twine.NewServeMuxWith(-1, twine.NewTestLogger(t), http.NewServeMux())
	mux.Use(dispatch.AccessLog(zap.New(core).Named("access"), store))
	mux.Handle("/", h)

	return &fixture{mux: mux, logs: logs, reg: reg}
}

func (f *fixture) do(method, target string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	return rec
}

func TestMainFlow(t *testing.T) {
	f := setup(t)

	for _, tt := range []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{"root runs index script", "http://site.test/", 200, dispatch.DefaultContentType, "<h1>site</h1>"},
		{"port is ignored", "http://www.site.test:2350/", 200, dispatch.DefaultContentType, "<h1>site</h1>"},
		{"unknown host gets default", "http://elsewhere.test/about.html", 200, dispatch.DefaultContentType, "<p>about</p>"},
		{"directory falls through to index", "http://site.test/docs/", 200, dispatch.DefaultContentType, "<p>docs</p>"},
		{"percent encoded path", "http://site.test/%61bout.html", 200, dispatch.DefaultContentType, "<p>about</p>"},
		{"static file", "http://site.test/styles/site.css", 200, "text/css; charset=utf-8", "body{}"},
		{"missing document", "http://site.test/nope", 404, dispatch.DefaultContentType, "<p>no such page on site</p>"},
		{"missing without 404 document", "http://bare.test/nope", 404, "text/plain;charset=UTF-8", dispatch.NotFoundBody},
		{"ignore404", "http://lenient.test/nope", 200, "text/plain;charset=UTF-8", dispatch.NotFoundBody},
		{"failing stage", "http://site.test/broken.html", 500, "text/html; charset=utf-8", "<p>sorry</p>"},
		{"failing stage without 500 document", "http://bare.test/broken.html", 500, "text/plain;charset=UTF-8", dispatch.InternalErrorBody},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestErrorFlowIsLogged(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "http://bare.test/broken.html")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := f.logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bare", entries[0].ContextMap()["domain"])
	assert.Equal(t, "/broken.html", entries[0].ContextMap()["path"])
	assert.Contains(t, entries[0].ContextMap()["error"], "broken document")
	assert.Equal(t, 1, f.logs.FilterMessage("server error document failed").Len())
}

func TestRanges(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "http://site.test/data.bin", "Range", "bytes=100-199")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, 100, rec.Body.Len())

	rec = f.do(http.MethodHead, "http://site.test/data.bin", "Range", "bytes=900-")
	assert.Equal(t, "bytes 900-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))

	rec = f.do(http.MethodGet, "http://site.test/data.bin", "Range", "bytes=2000-")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, 1, f.logs.FilterMessage("unsatisfiable range").Len())
	assert.Zero(t, f.logs.FilterMessage("request failed").Len())
}

func TestStageEndsResponse(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "http://site.test/moved.html")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/about.html", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "<p>moved</p>")
}

func TestCORSOnRequests(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "http://api.test/", "Origin", "https://app.example")
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "false", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(http.MethodGet, "http://site.test/")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccessLog(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "http://www.site.test/nope", "User-Agent", "probe/1.0")
	id := rec.Header().Get(dispatch.RequestIDHeader)
	require.NotEmpty(t, id)

	entries := f.logs.Filter(func(e observer.LoggedEntry) bool { return e.LoggerName == "access" }).All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "site", fields["domain"])
	assert.Equal(t, "probe/1.0", fields["user_agent"])
	assert.Equal(t, int64(404), fields["status"])
	assert.Equal(t, id, fields["request_id"])

	const given = "7f0c1d4e-2a4b-4c47-9d55-1f9f5d3b8a10"
	rec = f.do(http.MethodGet, "http://site.test/", dispatch.RequestIDHeader, given)
	assert.Equal(t, given, rec.Header().Get(dispatch.RequestIDHeader))

	rec = f.do(http.MethodGet, "http://bare.test/broken.html", dispatch.RequestIDHeader, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(dispatch.RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(dispatch.RequestIDHeader))
}

func TestMetrics(t *testing.T) {
	f := setup(t)

	f.do(http.MethodGet, "http://site.test/")
	f.do(http.MethodGet, "http://site.test/about.html")
	f.do(http.MethodGet, "http://site.test/styles/site.css")
	f.do(http.MethodGet, "http://site.test/nope")
	f.do(http.MethodGet, "http://site.test/broken.html")
	f.do(http.MethodGet, "http://site.test/data.bin", "Range", "bytes=x")

	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP twine_requests_total Requests served by outcome
# TYPE twine_requests_total counter
twine_requests_total{outcome="error"} 1
twine_requests_total{outcome="not_found"} 1
twine_requests_total{outcome="processed"} 2
twine_requests_total{outcome="range_error"} 1
twine_requests_total{outcome="static"} 1
`), "twine_requests_total"))
}

func TestStoreSwapIsPickedUp(t *testing.T) {
	root := docroot(t, map[string]string{"index.html": "one"})
	reg1, err := vhost.NewFromDomains([]vhost.Domain{{Name: "a", Hostnames: []string{"a.test"}, Root: root}}, "a")
	require.NoError(t, err)

	store := vhost.NewStore(reg1)
	pl := pipeline.New()
	t.Cleanup(func() { require.NoError(t, pl.Close()) })
	pl.RegisterProcessableExtension("html")

	h := twine.ToStd(twine.ToBare(dispatch.New(store, pl, &static.Sender{})), -1, twine.NewTestLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://a.test/", nil))
	assert.Equal(t, "one", rec.Body.String())

	reg2, err := vhost.NewFromDomains([]vhost.Domain{{Name: "b", Hostnames: []string{"b.test"},
		Root: docroot(t, map[string]string{"index.html": "two"})}}, "b")
	require.NoError(t, err)
	store.Swap(reg2)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://a.test/", nil))
	assert.Equal(t, "two", rec.Body.String())
}

// swapOnStat swaps the store the first time a path with the suffix is looked up.
type swapOnStat struct {
	probe.OSFS
	suffix string
	store  *vhost.Store
	next   *vhost.Registry
	once   sync.Once
}

func (s *swapOnStat) Stat(name string) (fs.FileInfo, error) {
	if strings.HasSuffix(name, s.suffix) {
		s.once.Do(func() { s.store.Swap(s.next) })
	}

	return s.OSFS.Stat(name)
}

func TestNotFoundUsesTheDomainOfTheRequest(t *testing.T) {
	reg1, err := vhost.NewFromDomains([]vhost.Domain{{Name: "a", Hostnames: []string{"a.test"},
		Root: docroot(t, map[string]string{"404.html": "gone from one"})}}, "a")
	require.NoError(t, err)

	reg2, err := vhost.NewFromDomains([]vhost.Domain{{Name: "a", Hostnames: []string{"a.test"},
		Root: docroot(t, map[string]string{"404.html": "gone from two"})}}, "a")
	require.NoError(t, err)

	store := vhost.NewStore(reg1)
	pl := pipeline.New()
	t.Cleanup(func() { require.NoError(t, pl.Close()) })
	pl.RegisterProcessableExtension("html")

	fsys := &swapOnStat{suffix: "/nope.html", store: store, next: reg2}
	h := twine.ToStd(twine.ToBare(dispatch.New(store, pl, &static.Sender{}, dispatch.WithFS(fsys))), -1,
		twine.NewTestLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://a.test/nope.html", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "gone from one", rec.Body.String())
	assert.Same(t, reg2, store.Load())
}

func TestTraversalStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "www")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o600))

	reg, err := vhost.NewFromDomains([]vhost.Domain{{Name: "a", Hostnames: []string{"a.test"}, Root: root}}, "a")
	require.NoError(t, err)

	pl := pipeline.New()
	t.Cleanup(func() { require.NoError(t, pl.Close()) })

	// no mux in front, it would redirect to the cleaned path
	h := twine.ToStd(twine.ToBare(dispatch.New(vhost.NewStore(reg), pl, &static.Sender{})), -1, twine.NewTestLogger(t))

	for _, target := range []string{"/../secret.txt", "/a/../../secret.txt", "/..%2fsecret.txt"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://a.test"+target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, dispatch.NotFoundBody, rec.Body.String(), target)
	}
}
