package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Batcher defaults.
const (
	DefaultBatchInterval = 1 * time.Second
	DefaultMaxBatch      = 50
	DefaultQueueSize     = 1024
)

// SubscribeFunc sends one batch of trade-subscription keys.
type SubscribeFunc func(keys []string) error

// Batcher collects per-mint subscribe requests and sends them in capped
// batches on a fixed interval, so each new token does not cost one
// subscription round-trip. Requests flow through a bounded channel: the
// engine enqueues, the batcher goroutine drains. Enqueue never blocks.
type Batcher struct {
	subscribe SubscribeFunc
	interval  time.Duration
	maxBatch  int
	logger    zerolog.Logger

	requests chan string

	mu      sync.Mutex
	pending map[string]struct{}
}

// BatcherOptions configures a Batcher.
type BatcherOptions struct {
	Subscribe SubscribeFunc
	Interval  time.Duration
	MaxBatch  int
	QueueSize int
	Logger    zerolog.Logger
}

// NewBatcher creates a subscription batcher.
func NewBatcher(opts BatcherOptions) *Batcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Batcher{
		subscribe: opts.Subscribe,
		interval:  interval,
		maxBatch:  maxBatch,
		logger:    opts.Logger.With().Str("component", "sub_batcher").Logger(),
		requests:  make(chan string, queueSize),
		pending:   make(map[string]struct{}),
	}
}

// Enqueue requests a trade subscription for a mint. Best-effort: if the
// queue is full the request is dropped with a warning; the stale-subscription
// watchdog re-requests anything that slipped through.
func (b *Batcher) Enqueue(mint string) {
	if mint == "" {
		return
	}
	select {
	case b.requests <- mint:
	default:
		b.logger.Warn().Str("mint", mint).Msg("subscription queue full, request dropped")
	}
}

// Run drains the queue on the configured interval until ctx is cancelled.
// A final drain-and-send runs on shutdown so queued requests are not lost
// when the engine stops and restarts promptly.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.sendAll()
			return
		case mint := <-b.requests:
			b.addPending(mint)
		case <-ticker.C:
			b.drain()
			b.sendBatch()
		}
	}
}

// drain moves everything currently queued into the pending set.
func (b *Batcher) drain() {
	for {
		select {
		case mint := <-b.requests:
			b.addPending(mint)
		default:
			return
		}
	}
}

func (b *Batcher) addPending(mint string) {
	b.mu.Lock()
	b.pending[mint] = struct{}{}
	b.mu.Unlock()
}

// sendBatch sends at most maxBatch pending keys; the rest wait a tick.
func (b *Batcher) sendBatch() {
	b.mu.Lock()
	keys := make([]string, 0, b.maxBatch)
	for mint := range b.pending {
		keys = append(keys, mint)
		if len(keys) >= b.maxBatch {
			break
		}
	}
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	if err := b.subscribe(keys); err != nil {
		// Keys stay pending; retried on the next tick.
		b.logger.Warn().Err(err).Int("keys", len(keys)).Msg("subscribe batch failed")
		return
	}

	b.mu.Lock()
	for _, mint := range keys {
		delete(b.pending, mint)
	}
	b.mu.Unlock()
}

// sendAll flushes every pending key in maxBatch chunks.
func (b *Batcher) sendAll() {
	for b.PendingCount() > 0 {
		before := b.PendingCount()
		b.sendBatch()
		if b.PendingCount() == before {
			return // subscribe failing, give up on shutdown
		}
	}
}

// PendingCount returns the number of keys awaiting subscription.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
