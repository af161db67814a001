// Package app wires the document server into a runnable application: environment parsing, structured
// logging, OpenTelemetry tracing, prometheus metrics, configuration reload and graceful shutdown.
//
// # Overview
//
// A complete server is a single call:
//
//	app.New(
//	    app.WithStage(pipeline.Named("year", stampYear), pipeline.Immediate),
//	).Run()
//
// # Environment Configuration
//
//	| Variable                     | Default    | Description                                      |
//	|------------------------------|------------|--------------------------------------------------|
//	| TWINE_ADDR                   | :2350      | Main listener                                    |
//	| TWINE_ADMIN_ADDR             | -          | Admin listener for /metrics and /healthz         |
//	| TWINE_CONFIG                 | twine.yml  | Virtual host configuration file                  |
//	| TWINE_WATCH_CONFIG           | true       | Reload the configuration file when it changes    |
//	| TWINE_SERVICE_NAME           | twine      | Service name for tracing                         |
//	| TWINE_LOG_LEVEL              | info       | Log level (debug, info, warn, error)             |
//	| TWINE_ACCESS_LOG             | true       | Write an access log entry per request            |
//	| TWINE_ACCESS_LOG_FILE        | -          | Extra file the access log is written to          |
//	| TWINE_OTEL_EXPORTER          | none       | Trace exporter: "none", "stdout" or "otlp"       |
//	| TWINE_STATIC_CACHING         | true       | Caching headers on static files                  |
//	| TWINE_COMPRESSION            | false      | Gzip responses                                   |
//	| TWINE_BUFFER_LIMIT           | 8388608    | Maximum size of a buffered response in bytes     |
//	| TWINE_SCRIPTING              | true       | Evaluate script blocks in documents              |
//	| TWINE_SCRIPT_EXCEPTIONS      | false      | Render script errors in place of the block       |
//	| TWINE_PROCESSABLE_EXTENSIONS | html,htm   | Extensions that go through the pipeline          |
//	| TWINE_WORKER_POOL_SIZE       | 8          | Workers running deferred stages                  |
//	| TWINE_WORKER_QUEUE_SIZE      | 64         | Deferred documents waiting for a worker          |
//	| TWINE_TERMINATE_SCOPE        | tier       | What a terminating stage skips: tier or pipeline |
//	| TWINE_READ_HEADER_TIMEOUT    | 10s        | http.Server ReadHeaderTimeout                    |
//	| TWINE_IDLE_TIMEOUT           | 2m         | http.Server IdleTimeout                          |
//	| TWINE_SHUTDOWN_TIMEOUT       | 10s        | Graceful shutdown limit                          |
//
// # Stages
//
// Stages are added with [WithStage], in order. Stages that need other dependencies are provided into
// the "stages" value group through [WithFx]:
//
//	app.WithFx(fx.Provide(fx.Annotate(NewSearchIndexStage, fx.ResultTags(`group:"stages"`))))
//
// # Testing
//
// The apptest package builds the same graph on fxtest.
package app
