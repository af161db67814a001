package app

import (
	"context"
	"net"
	"net/http"

	"github.com/advdv/twine"
	"github.com/advdv/twine/dispatch"
	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewMux creates the buffered mux the document handler is mounted on.
func NewMux(env Environment, logs *zap.Logger) *twine.ServeMux {
	return twine.NewServeMuxWith(env.BufferLimit, twine.NewZapLogger(logs), http.NewServeMux())
}

// ServerParams holds the dependencies for creating the HTTP server.
type ServerParams struct {
	fx.In

	Env        Environment
	Mux        *twine.ServeMux
	Handler    *dispatch.Handler
	Store      *vhost.Store
	AccessLog  AccessLogger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// Server is the main listener.
type Server struct{ *http.Server }

// NewServer creates the HTTP server with all middleware and routing configured.
func NewServer(params ServerParams) Server {
	params.Mux.Use(dispatch.AccessLog(params.AccessLog.Logger, params.Store))
	params.Mux.Use(twine.Recover())
	params.Mux.Handle("/", params.Handler)

	var handler http.Handler = params.Mux
	if params.Env.Compression {
		handler = gzhttp.GzipHandler(handler)
	}

	handler = withTracing(params.TracerProv, params.Propagator, params.Env.ServiceName)(handler)

	return Server{&http.Server{
		Addr:              params.Env.Addr,
		Handler:           handler,
		ReadHeaderTimeout: params.Env.ReadHeaderTimeout,
		IdleTimeout:       params.Env.IdleTimeout,
	}}
}

// AdminServer serves /metrics and /healthz. It is nil without TWINE_ADMIN_ADDR.
type AdminServer struct{ *http.Server }

// NewAdminServer creates the admin server.
func NewAdminServer(env Environment, reg *prometheus.Registry) AdminServer {
	if env.AdminAddr == "" {
		return AdminServer{}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
		_, _ = w.Write([]byte("ok"))
	})

	return AdminServer{&http.Server{
		Addr:              env.AdminAddr,
		Handler:           mux,
		ReadHeaderTimeout: env.ReadHeaderTimeout,
	}}
}

// startServerHook registers lifecycle hooks for the HTTP servers. Listening starts in OnStart so a port
// that is taken fails the start.
func startServerHook(lc fx.Lifecycle, env Environment, server Server, admin AdminServer, logger *zap.Logger) {
	for _, srv := range []*http.Server{server.Server, admin.Server} {
		if srv == nil {
			continue
		}

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return errors.Wrapf(err, "listen on %s", srv.Addr)
				}

				logger.Info("starting server", zap.String("addr", ln.Addr().String()))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("server error", zap.Error(err))
					}
				}()

				return nil
			},
			OnStop: func(ctx context.Context) error {
				logger.Info("stopping server", zap.String("addr", srv.Addr))

				ctx, cancel := context.WithTimeout(ctx, env.ShutdownTimeout)
				defer cancel()

				return srv.Shutdown(ctx)
			},
		})
	}
}
