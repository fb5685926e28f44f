// Package exporter ships finalized time machine buckets to long-term
// storage as per-window aggregates.
package exporter

import (
	"context"
	"log"
	"sync"
	"time"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
	"price-oracle-lab/internal/storage"
	"price-oracle-lab/internal/timemachine"
)

// Config configures exporter batching.
type Config struct {
	// FlushInterval is how often buffered aggregates are written out.
	FlushInterval time.Duration
	// MaxBatch flushes early once this many aggregates are buffered.
	MaxBatch int
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		MaxBatch:      500,
	}
}

// Exporter buffers finalized buckets and flushes them in batches.
type Exporter struct {
	config Config
	store  storage.BucketAggregateStore

	mu      sync.Mutex
	pending []*domain.BucketAggregate

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New creates an exporter writing to store.
func New(store storage.BucketAggregateStore, config *Config) *Exporter {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	return &Exporter{
		config: cfg,
		store:  store,
		done:   make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (e *Exporter) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.config.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.flush(ctx)
			case <-e.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Collect converts finalized buckets into aggregates and buffers them.
// Safe to call from instruction callbacks.
func (e *Exporter) Collect(account ledger.Pubkey, exponent int32, buckets []timemachine.Bucket) {
	if len(buckets) == 0 {
		return
	}

	rows := make([]*domain.BucketAggregate, 0, len(buckets))
	for i := range buckets {
		b := &buckets[i]
		rows = append(rows, &domain.BucketAggregate{
			AccountPubkey: account.String(),
			StartTime:     b.StartTime,
			Granularity:   timemachine.ThirtyMinutes,
			AvgPrice:      b.AvgPrice(),
			AvgConf:       b.AvgConf(),
			Count:         b.Count,
			Exponent:      exponent,
		})
	}

	e.mu.Lock()
	e.pending = append(e.pending, rows...)
	n := len(e.pending)
	e.mu.Unlock()

	if n >= e.config.MaxBatch {
		e.flush(context.Background())
	}
}

// Flush writes out everything buffered so far.
func (e *Exporter) Flush(ctx context.Context) error {
	return e.flush(ctx)
}

func (e *Exporter) flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := e.store.InsertBulk(ctx, batch)
	observability.RecordExport(len(batch), err)
	if err != nil {
		// Put the batch back so the next flush retries it.
		e.mu.Lock()
		e.pending = append(batch, e.pending...)
		e.mu.Unlock()
		log.Printf("[exporter] flush of %d aggregates failed: %v", len(batch), err)
		return err
	}
	return nil
}

// Close stops the flush loop and writes out the remaining buffer.
func (e *Exporter) Close(ctx context.Context) error {
	var err error
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
		err = e.flush(ctx)
	})
	return err
}
