package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned when submitting to a pool that was closed.
var ErrPoolClosed = errors.New("pipeline: worker pool is closed")

// WorkerPool runs deferred work on a fixed number of goroutines fed by a bounded queue.
type WorkerPool struct {
	logs        *zap.Logger
	queue       chan func()
	workerCount int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// PoolConfig configures a [WorkerPool].
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 8, QueueSize: 64}
}

// NewWorkerPool starts the workers.
func NewWorkerPool(logs *zap.Logger, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig().Workers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if logs == nil {
		logs = zap.NewNop()
	}

	p := &WorkerPool{
		logs:        logs.Named("pool"),
		queue:       make(chan func(), cfg.QueueSize),
		workerCount: cfg.Workers,
		done:        make(chan struct{}),
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// Submit queues fn. It blocks while the queue is full, until ctx is done or the pool is closed.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	select {
	case p.queue <- fn:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "submit deferred work")
	}
}

// Close stops accepting work, runs what is still queued and waits for the workers, at most timeout.
func (p *WorkerPool) Close(timeout time.Duration) error {
	p.closeOnce.Do(func() { close(p.done) })

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return errors.Newf("worker pool shutdown timed out after %v", timeout)
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case fn := <-p.queue:
			p.run(id, fn)
		case <-p.done:
			for {
				select {
				case fn := <-p.queue:
					p.run(id, fn)
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) run(id int, fn func()) {
	defer func() {
		if e := recover(); e != nil {
			p.logs.Error("deferred work panicked", zap.Int("worker", id), zap.Any("panic", e))
		}
	}()

	fn()
}
