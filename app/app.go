package app

import (
	"context"

	"github.com/advdv/twine/pipeline"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// Config holds configuration for the app.
type Config struct {
	FxOptions []fx.Option
	Stages    Stages
}

// Option configures the App.
type Option func(*Config)

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *Config) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithStage adds a stage to the document pipeline. Stages of a tier run in the order they were added.
// Stages that need dependencies can be provided into the "stages" value group instead; those run after
// the ones added here, in no particular order.
func WithStage(stage pipeline.Stage, tier pipeline.Tier) Option {
	return func(c *Config) {
		c.Stages = append(c.Stages, TieredStage{Stage: stage, Tier: tier})
	}
}

// FxOptions returns the complete DI graph of the server.
func FxOptions(opts ...Option) []fx.Option {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	base := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg.Stages),
		fx.Provide(ParseEnv),
		fx.Provide(NewLogger),
		fx.Provide(NewAccessLogger),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(NewRegistry),
		fx.Provide(NewStore),
		fx.Provide(NewWorkerPool),
		fx.Provide(NewPipeline),
		fx.Provide(NewHandler),
		fx.Provide(NewMux),
		fx.Provide(NewServer),
		fx.Provide(NewAdminServer),
		fx.Invoke(startWatcherHook),
		fx.Invoke(startServerHook),
		fx.Invoke(func(lc fx.Lifecycle, logs *zap.Logger) {
			lc.Append(fx.StopHook(func() { _ = logs.Sync() }))
		}),
	}

	return append(base, cfg.FxOptions...)
}

// New creates the server application.
//
//	app.New(
//	    app.WithStage(stamp, pipeline.Immediate),
//	).Run()
func New(opts ...Option) *App {
	return &App{app: fx.New(FxOptions(opts...)...)}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application and blocks until ctx is done, then stops it.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}

// Err returns an error from building the DI graph, if any.
func (a *App) Err() error { return a.app.Err() }
