package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-stream-lab/internal/domain"
)

// Forwarder posts newly discovered tokens to an external webhook in small
// batches. No durability guarantee: after maxRetries failed deliveries the
// batch is discarded. Never blocks ingestion; Push only appends to a buffer.
type Forwarder struct {
	url        string
	batchSize  int
	maxRetries int
	client     *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	buffer []*domain.TokenCreation
}

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	URL        string
	BatchSize  int           // default 10
	MaxRetries int           // default 3
	Timeout    time.Duration // per-request, default 5s
	Logger     zerolog.Logger
}

// NewForwarder creates a webhook forwarder. A nil forwarder is returned for
// an empty URL; all methods on a nil Forwarder are no-ops.
func NewForwarder(opts ForwarderOptions) *Forwarder {
	if opts.URL == "" {
		return nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Forwarder{
		url:        opts.URL,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
		logger:     opts.Logger.With().Str("component", "discovery_forwarder").Logger(),
	}
}

// Push buffers a discovered token for the next delivery cycle.
// Safe for concurrent use with Deliver.
func (f *Forwarder) Push(creation *domain.TokenCreation) {
	if f == nil || creation == nil {
		return
	}
	f.mu.Lock()
	f.buffer = append(f.buffer, creation)
	f.mu.Unlock()
}

// Pending returns the number of buffered, undelivered discoveries.
func (f *Forwarder) Pending() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffer)
}

// Deliver drains the buffer in batches. Each batch gets maxRetries attempts
// and is then dropped; a dropped batch never stalls later ones.
func (f *Forwarder) Deliver(ctx context.Context) {
	if f == nil {
		return
	}

	for {
		f.mu.Lock()
		if len(f.buffer) == 0 {
			f.mu.Unlock()
			return
		}
		n := f.batchSize
		if n > len(f.buffer) {
			n = len(f.buffer)
		}
		batch := f.buffer[:n]
		f.buffer = f.buffer[n:]
		f.mu.Unlock()

		if err := f.post(ctx, batch); err != nil {
			f.logger.Warn().Err(err).Int("batch_size", len(batch)).
				Msg("discovery batch dropped after retries")
		}
	}
}

func (f *Forwarder) post(ctx context.Context, batch []*domain.TokenCreation) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal discovery batch: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	return lastErr
}
