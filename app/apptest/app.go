// Package apptest provides test helpers for twine applications.
//
// It constructs the identical DI graph as [app.New] but uses [fxtest.App] which fails the test
// immediately on DI errors.
//
//	apptest.SetEnv(t, 18371).Docroot(root)
//	a := apptest.New(t)
//	a.RequireStart()
//	t.Cleanup(a.RequireStop)
package apptest

import (
	"testing"

	"github.com/advdv/twine/app"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [app.New].
func New(t testing.TB, opts ...app.Option) *App {
	return &App{App: fxtest.New(t, app.FxOptions(opts...)...)}
}
