package apptest

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting TWINE_* env vars via t.Setenv. Create one with [SetEnv].
type Env struct {
	t      testing.TB
	config string
}

// SetEnv sets the environment for a test server on port, with the access log and config watching
// off and a configuration file in a temporary directory. Until [Env.Docroot] or [Env.ConfigYAML] is
// called that file declares one domain, "test", serving an empty directory.
//
// Defaults:
//   - TWINE_ADDR: "127.0.0.1:<port>"
//   - TWINE_ADMIN_ADDR: "127.0.0.1:<port+1>"
//   - TWINE_ACCESS_LOG: "false"
//   - TWINE_WATCH_CONFIG: "false"
//   - TWINE_OTEL_EXPORTER: "none"
//   - TWINE_LOG_LEVEL: "warn"
func SetEnv(t testing.TB, port int) *Env {
	t.Helper()

	e := &Env{t: t, config: filepath.Join(t.TempDir(), "twine.yml")}

	t.Setenv("TWINE_ADDR", "127.0.0.1:"+strconv.Itoa(port))
	t.Setenv("TWINE_ADMIN_ADDR", "127.0.0.1:"+strconv.Itoa(port+1))
	t.Setenv("TWINE_CONFIG", e.config)
	t.Setenv("TWINE_ACCESS_LOG", "false")
	t.Setenv("TWINE_WATCH_CONFIG", "false")
	t.Setenv("TWINE_OTEL_EXPORTER", "none")
	t.Setenv("TWINE_LOG_LEVEL", "warn")

	return e.Docroot(t.TempDir())
}

// ConfigPath returns the configuration file the app reads.
func (e *Env) ConfigPath() string { return e.config }

// Docroot writes a configuration with the single default domain "test" served from root, for any
// hostname.
func (e *Env) Docroot(root string) *Env {
	e.t.Helper()

	return e.ConfigYAML("server:\n  defaultDomain: test\n  domains:\n    test:\n      hostname: test.local\n" +
		"      root: " + strconv.Quote(root) + "\n")
}

// ConfigYAML writes doc as the configuration file.
func (e *Env) ConfigYAML(doc string) *Env {
	e.t.Helper()

	if err := os.WriteFile(e.config, []byte(doc), 0o600); err != nil {
		e.t.Fatalf("apptest: write config: %v", err)
	}

	return e
}

// Set overrides any TWINE_* variable.
func (e *Env) Set(key, value string) *Env {
	e.t.Helper()
	e.t.Setenv(key, value)

	return e
}
