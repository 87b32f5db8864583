package remote

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
)

// SyncerConfig bounds each remote patch.
type SyncerConfig struct {
	Timeout    time.Duration // per attempt
	MaxRetries int
	Backoff    time.Duration // first retry delay, doubled per retry
}

// DefaultSyncerConfig returns production defaults.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// Syncer mirrors files to a DocumentStore in the background. Publish never
// blocks; newer content for a file replaces content still queued, and a
// batch that exhausts its retries is dropped and reported.
type Syncer struct {
	store  domain.DocumentStore
	cfg    SyncerConfig
	notify domain.Notifier

	mu       sync.Mutex
	pending  map[string]string
	inflight bool
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// NewSyncer creates a syncer. Call Start to run it.
func NewSyncer(store domain.DocumentStore, cfg SyncerConfig, n domain.Notifier) *Syncer {
	def := DefaultSyncerConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if n == nil {
		n = domain.NopNotifier{}
	}
	return &Syncer{
		store:   store,
		cfg:     cfg,
		notify:  n,
		pending: make(map[string]string),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the sync loop until Close.
func (s *Syncer) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.loop()
}

// Publish queues content for name. It implements domain.Publisher.
func (s *Syncer) Publish(name, content string) {
	s.mu.Lock()
	if _, queued := s.pending[name]; queued {
		observability.RemoteSyncs.WithLabelValues("superseded").Inc()
	}
	s.pending[name] = content
	observability.RemoteQueueDepth.Set(float64(len(s.pending)))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued files.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush waits until the queue is empty and no patch is in flight.
func (s *Syncer) Flush(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		s.mu.Lock()
		idle := len(s.pending) == 0 && !s.inflight
		s.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Close stops the loop after the current batch.
func (s *Syncer) Close() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	if started {
		<-s.done
	}
}

func (s *Syncer) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for {
			batch := s.take()
			if batch == nil {
				break
			}
			s.push(batch)
		}
	}
}

// take moves the queue into a batch and marks it in flight.
func (s *Syncer) take() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.inflight = false
		return nil
	}
	batch := s.pending
	s.pending = make(map[string]string)
	s.inflight = true
	observability.RemoteQueueDepth.Set(0)
	return batch
}

func (s *Syncer) push(batch map[string]string) {
	delay := s.cfg.Backoff
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.RemoteSyncs.WithLabelValues("retry").Inc()
			select {
			case <-s.stop:
				s.drop(batch, fmt.Errorf("shutdown: %w", err))
				return
			case <-time.After(delay):
			}
			delay *= 2
			s.refresh(batch)
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		err = s.store.Patch(ctx, batch)
		cancel()
		observability.RemoteSyncLatency.Observe(float64(time.Since(start).Milliseconds()))
		if err == nil {
			observability.RemoteSyncs.WithLabelValues("ok").Inc()
			return
		}
		log.Printf("[sync] patch %d file(s) attempt %d/%d: %v", len(batch), attempt+1, s.cfg.MaxRetries+1, err)
	}
	s.drop(batch, err)
}

// refresh folds newer queued content for batch files into the retry.
func (s *Syncer) refresh(batch map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range batch {
		if content, ok := s.pending[name]; ok {
			batch[name] = content
			delete(s.pending, name)
		}
	}
	observability.RemoteQueueDepth.Set(float64(len(s.pending)))
}

func (s *Syncer) drop(batch map[string]string, err error) {
	observability.RemoteSyncs.WithLabelValues("dropped").Add(float64(len(batch)))
	names := make([]string, 0, len(batch))
	for name := range batch {
		names = append(names, name)
	}
	log.Printf("[sync] dropped %v: %v", names, err)
	s.notify.Notify(domain.Event{
		Type:      domain.EventSyncFailed,
		Message:   fmt.Sprintf("Remote sync failed for %d file(s); local state is unaffected.", len(batch)),
		Timestamp: time.Now(),
	})
}
