// Package processing runs inbound work on a fixed pool of goroutines. Jobs are
// sharded by key, so jobs sharing a key run one at a time and in order while
// different keys proceed in parallel.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Submit once the pool has shut down.
var ErrStopped = errors.New("processor stopped")

// Job is one unit of work. Key selects the shard; for bot updates it is the
// sender id.
type Job struct {
	Key int64
	Run func(ctx context.Context)
}

// Processor consumes Jobs on a fixed set of shards.
type Processor struct {
	shards []chan Job
	logger *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New builds a Processor with one queue per worker.
func New(workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		shards: make([]chan Job, workers),
		logger: logger.With(slog.String("component", "processing")),
		done:   make(chan struct{}),
	}
	for i := range p.shards {
		p.shards[i] = make(chan Job, 16)
	}
	return p
}

// Start launches one goroutine per shard. They exit when ctx is cancelled or
// Stop is called, after draining what is already queued.
func (p *Processor) Start(ctx context.Context) {
	for _, shard := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, shard)
	}
}

// Submit queues a job on its shard, blocking while the shard is full.
func (p *Processor) Submit(ctx context.Context, job Job) error {
	shard := p.shards[shardIndex(job.Key, len(p.shards))]
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case shard <- job:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the workers and waits for them to finish.
func (p *Processor) Stop() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context, shard chan Job) {
	defer p.wg.Done()
	for {
		select {
		case job := <-shard:
			p.run(ctx, job)
		case <-ctx.Done():
			return
		case <-p.done:
			for {
				select {
				case job := <-shard:
					p.run(ctx, job)
				default:
					return
				}
			}
		}
	}
}

func (p *Processor) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", slog.Int64("key", job.Key), slog.Any("panic", r))
		}
	}()
	job.Run(ctx)
}

func shardIndex(key int64, n int) int {
	idx := key % int64(n)
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}
