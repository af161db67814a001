package app

import (
	"time"

	"github.com/advdv/twine/pipeline"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment is the process configuration, read from TWINE_* environment variables.
type Environment struct {
	Addr        string `env:"TWINE_ADDR" envDefault:":2350"`
	AdminAddr   string `env:"TWINE_ADMIN_ADDR"`
	Config      string `env:"TWINE_CONFIG" envDefault:"twine.yml"`
	WatchConfig bool   `env:"TWINE_WATCH_CONFIG" envDefault:"true"`

	ServiceName   string        `env:"TWINE_SERVICE_NAME" envDefault:"twine"`
	LogLevel      zapcore.Level `env:"TWINE_LOG_LEVEL" envDefault:"info"`
	AccessLog     bool          `env:"TWINE_ACCESS_LOG" envDefault:"true"`
	AccessLogFile string        `env:"TWINE_ACCESS_LOG_FILE"`
	OtelExporter  string        `env:"TWINE_OTEL_EXPORTER" envDefault:"none"`

	StaticCaching bool `env:"TWINE_STATIC_CACHING" envDefault:"true"`
	Compression   bool `env:"TWINE_COMPRESSION" envDefault:"false"`
	// BufferLimit caps a buffered response in bytes. Static files bypass the buffer.
	BufferLimit int `env:"TWINE_BUFFER_LIMIT" envDefault:"8388608"`

	Scripting             bool     `env:"TWINE_SCRIPTING" envDefault:"true"`
	ScriptExceptions      bool     `env:"TWINE_SCRIPT_EXCEPTIONS" envDefault:"false"`
	ProcessableExtensions []string `env:"TWINE_PROCESSABLE_EXTENSIONS" envDefault:"html,htm" envSeparator:","`
	WorkerPoolSize        int      `env:"TWINE_WORKER_POOL_SIZE" envDefault:"8"`
	WorkerQueueSize       int      `env:"TWINE_WORKER_QUEUE_SIZE" envDefault:"64"`
	TerminateScope        string   `env:"TWINE_TERMINATE_SCOPE" envDefault:"tier"`

	ReadHeaderTimeout time.Duration `env:"TWINE_READ_HEADER_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"TWINE_IDLE_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout   time.Duration `env:"TWINE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv reads the environment.
func ParseEnv() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return e, errors.Wrap(err, "failed to parse environment")
	}

	if _, err := pipeline.ParseTerminateScope(e.TerminateScope); err != nil {
		return e, errors.Wrap(err, "TWINE_TERMINATE_SCOPE")
	}

	if e.WorkerPoolSize < 1 {
		return e, errors.Newf("TWINE_WORKER_POOL_SIZE must be positive, got %d", e.WorkerPoolSize)
	}

	return e, nil
}
