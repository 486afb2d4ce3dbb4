package dataset

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// PrefetchConfig holds configuration for a prefetching source.
type PrefetchConfig struct {
	// Depth is the number of batches prepared ahead of the consumer.
	Depth int
}

// DefaultPrefetchConfig returns default prefetch configuration.
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{Depth: 3}
}

// PrefetchSource wraps a Source with a background producer so batch
// preparation overlaps the training step. Batches arrive in the same order
// the inner source produces them. The inner source is only touched from the
// producer goroutine.
type PrefetchSource struct {
	inner Source

	batches chan prefetched
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	size    int
}

type prefetched struct {
	batch *Batch
	err   error
}

// NewPrefetchSource creates a prefetching wrapper over inner.
func NewPrefetchSource(inner Source, cfg PrefetchConfig) (*PrefetchSource, error) {
	if inner == nil {
		return nil, errors.New("inner source cannot be nil")
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultPrefetchConfig().Depth
	}
	return &PrefetchSource{
		inner:   inner,
		batches: make(chan prefetched, cfg.Depth),
	}, nil
}

func (p *PrefetchSource) FeatureWidth() int {
	return p.inner.FeatureWidth()
}

// Next returns the next prefetched batch. The producer starts lazily on the
// first call; every call must use the same batch size.
func (p *PrefetchSource) Next(batchSize int) (*Batch, error) {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.size = batchSize
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.wg.Add(1)
		go p.produce(ctx, batchSize)
	} else if batchSize != p.size {
		p.mu.Unlock()
		return nil, errors.Errorf("prefetch source started with batch size %d, got %d", p.size, batchSize)
	}
	p.mu.Unlock()

	next, ok := <-p.batches
	if !ok {
		return nil, errors.New("prefetch source is stopped")
	}
	return next.batch, next.err
}

func (p *PrefetchSource) produce(ctx context.Context, batchSize int) {
	defer p.wg.Done()
	defer close(p.batches)

	for {
		batch, err := p.inner.Next(batchSize)
		select {
		case p.batches <- prefetched{batch: batch, err: err}:
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts down the producer and drains any buffered batches. The source
// cannot be used afterwards.
func (p *PrefetchSource) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.started = true
		close(p.batches)
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	for range p.batches {
	}
}
