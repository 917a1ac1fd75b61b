package engines

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the engine worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent engine calls across all batches (default: 4)
}

// DefaultWorkerPoolConfig returns the pool settings used when none are configured.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 4,
	}
}

// WorkerPool bounds how many engine queries run at once. The slots are
// shared by every batch run through the same pool, so concurrent dispatches
// cannot multiply the load on the providers.
type WorkerPool struct {
	config WorkerPoolConfig
	slots  chan struct{}
	logger *zap.Logger
}

// NewWorkerPool creates a new engine worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultWorkerPoolConfig().MaxConcurrent
	}
	return &WorkerPool{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
		logger: logger.Named("engine-worker-pool"),
	}
}

// Run calls query once for each index in [0, n), starting each call as soon
// as a slot frees up, and waits for every started call to return. A call
// failing does not stop the others.
//
// Once ctx ends no further calls start. Run returns the indices that were
// never started, in ascending order, so the caller can record them.
func (p *WorkerPool) Run(ctx context.Context, n int, query func(ctx context.Context, i int)) (skipped []int) {
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if !p.acquire(ctx) {
			for j := i; j < n; j++ {
				skipped = append(skipped, j)
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.release()
			query(ctx, i)
		}(i)
	}

	wg.Wait()

	if len(skipped) > 0 {
		p.logger.Debug("Engine queries skipped after cancellation",
			zap.Int("started", n-len(skipped)),
			zap.Int("skipped", len(skipped)))
	}
	return skipped
}

// acquire takes a slot, or reports false once ctx has ended.
func (p *WorkerPool) acquire(ctx context.Context) bool {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	// Both cases may be ready together; a cancelled ctx wins.
	if ctx.Err() != nil {
		p.release()
		return false
	}
	return true
}

func (p *WorkerPool) release() { <-p.slots }
