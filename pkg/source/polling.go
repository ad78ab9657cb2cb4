package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrStaleResponse is returned by Poll when a newer poll was already accepted
var ErrStaleResponse = errors.New("stale response discarded")

// DefaultPollInterval matches the dashboard's refresh cadence
const DefaultPollInterval = 5 * time.Second

// PollingService drives a Puller periodically. Each poll takes a sequence
// number when it starts; a response is delivered only if no later-started
// poll has been delivered already.
type PollingService struct {
	puller   Puller
	interval time.Duration
	timeout  time.Duration

	mu           sync.Mutex
	deliverMu    sync.Mutex
	seq          uint64
	lastAccepted uint64
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// PollingOption configures a PollingService
type PollingOption func(*PollingService)

// WithPollTimeout bounds each pull; defaults to 30s
func WithPollTimeout(timeout time.Duration) PollingOption {
	return func(ps *PollingService) {
		ps.timeout = timeout
	}
}

// NewPollingService creates a polling service for puller
func NewPollingService(puller Puller, interval time.Duration, opts ...PollingOption) *PollingService {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ps := &PollingService{
		puller:   puller,
		interval: interval,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

// Name returns the underlying puller name
func (ps *PollingService) Name() string {
	return ps.puller.Name()
}

// Run polls immediately and then on every tick until ctx is done. Ticks do not
// wait for earlier pulls to finish.
func (ps *PollingService) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	poll := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ps.Poll(ctx, sink); err != nil && ctx.Err() == nil {
				if errors.Is(err, ErrStaleResponse) {
					log.Printf("⚠ %s: %v", ps.puller.Name(), err)
				} else {
					log.Printf("❌ Error polling %s: %v", ps.puller.Name(), err)
				}
			}
		}()
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// Start begins polling in the background
func (ps *PollingService) Start(sink Sink) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.done = make(chan struct{})
	ps.running = true

	go func(done chan struct{}) {
		defer close(done)
		ps.Run(ctx, sink)
	}(ps.done)

	log.Printf("✓ Polling service started for %s (every %s)", ps.puller.Name(), ps.interval)
}

// Stop halts polling and waits for in-flight pulls to return
func (ps *PollingService) Stop() {
	ps.mu.Lock()
	if !ps.running {
		ps.mu.Unlock()
		return
	}
	ps.running = false
	cancel, done := ps.cancel, ps.done
	ps.mu.Unlock()

	cancel()
	<-done
	log.Printf("✓ Polling service stopped for %s", ps.puller.Name())
}

// Poll performs one pull and delivers the batch unless a later poll already won.
func (ps *PollingService) Poll(ctx context.Context, sink Sink) error {
	seq := ps.next()

	pullCtx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	batch, err := ps.puller.Pull(pullCtx)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	ps.deliverMu.Lock()
	defer ps.deliverMu.Unlock()

	if !ps.accept(seq) {
		return fmt.Errorf("%w: sequence %d", ErrStaleResponse, seq)
	}

	if batch.Source == "" {
		batch.Source = ps.puller.Name()
	}
	sink.HandleBatch(ctx, batch)
	return nil
}

// LastAccepted returns the sequence number of the last delivered poll
func (ps *PollingService) LastAccepted() uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastAccepted
}

func (ps *PollingService) next() uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.seq++
	return ps.seq
}

func (ps *PollingService) accept(seq uint64) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if seq < ps.lastAccepted {
		return false
	}
	ps.lastAccepted = seq
	return true
}
