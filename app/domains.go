package app

import (
	"context"
	"time"

	"github.com/advdv/twine/config"
	"github.com/advdv/twine/dispatch"
	"github.com/advdv/twine/pipeline"
	"github.com/advdv/twine/pipeline/luascript"
	"github.com/advdv/twine/static"
	"github.com/advdv/twine/vhost"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TieredStage is a pipeline stage contributed to the app.
type TieredStage struct {
	Stage pipeline.Stage
	Tier  pipeline.Tier
}

// Stages is the ordered list of stages added with [WithStage].
type Stages []TieredStage

// NewStore loads the virtual host configuration file.
func NewStore(env Environment) (*vhost.Store, error) {
	reg, err := config.Load(env.Config)
	if err != nil {
		return nil, err
	}

	return vhost.NewStore(reg), nil
}

// startWatcherHook reloads the store when the configuration file changes.
func startWatcherHook(lc fx.Lifecycle, env Environment, store *vhost.Store, logs *zap.Logger) error {
	if !env.WatchConfig {
		return nil
	}

	w, err := config.NewWatcher(env.Config, store, logs)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return w.Start() },
		OnStop:  func(context.Context) error { return w.Close() },
	})

	return nil
}

// NewRegistry creates the private prometheus registry served on the admin listener.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// NewWorkerPool creates the pool deferred stages run on.
func NewWorkerPool(lc fx.Lifecycle, env Environment, logs *zap.Logger) *pipeline.WorkerPool {
	pool := pipeline.NewWorkerPool(logs, pipeline.PoolConfig{
		Workers:   env.WorkerPoolSize,
		QueueSize: env.WorkerQueueSize,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			timeout := env.ShutdownTimeout
			if dl, ok := ctx.Deadline(); ok {
				timeout = time.Until(dl)
			}

			return pool.Close(timeout)
		},
	})

	return pool
}

// PipelineParams holds the dependencies of the document pipeline.
type PipelineParams struct {
	fx.In

	Env    Environment
	Pool   *pipeline.WorkerPool
	Logger *zap.Logger
	Reg    *prometheus.Registry
	TP     trace.TracerProvider
	Stages Stages
	Group  []TieredStage `group:"stages"`
}

// NewPipeline creates the document pipeline with every contributed stage and the configured
// processable extensions.
func NewPipeline(p PipelineParams) (*pipeline.Pipeline, error) {
	scope, err := pipeline.ParseTerminateScope(p.Env.TerminateScope)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithWorkerPool(p.Pool),
		pipeline.WithTerminateScope(scope),
		pipeline.WithExposeScriptErrors(p.Env.ScriptExceptions),
		pipeline.WithLogger(p.Logger),
		pipeline.WithMetrics(pipeline.NewMetrics(p.Reg)),
		pipeline.WithTracerProvider(p.TP),
	}

	if p.Env.Scripting {
		opts = append(opts, pipeline.WithScripting(luascript.New()))
	}

	pl := pipeline.New(opts...)
	for _, ext := range p.Env.ProcessableExtensions {
		pl.RegisterProcessableExtension(ext)
	}

	for _, s := range append(p.Stages, p.Group...) {
		pl.Register(s.Stage, s.Tier)
	}

	return pl, nil
}

// NewHandler creates the dispatch handler.
func NewHandler(
	env Environment, store *vhost.Store, pl *pipeline.Pipeline, reg *prometheus.Registry, logs *zap.Logger,
) *dispatch.Handler {
	return dispatch.New(store, pl, &static.Sender{Caching: env.StaticCaching},
		dispatch.WithLogger(logs),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)))
}
