package source

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Batch is a set of readings delivered by one source
type Batch struct {
	Source   string
	Readings []models.Reading
	// Snapshot marks a batch that carries the full dataset rather than new readings
	Snapshot bool
}

// Sink receives batches from sources
type Sink interface {
	HandleBatch(ctx context.Context, batch Batch)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, batch Batch)

// HandleBatch calls f
func (f SinkFunc) HandleBatch(ctx context.Context, batch Batch) {
	f(ctx, batch)
}

// Puller fetches readings on demand; the PollingService drives it on a ticker
type Puller interface {
	// Name returns the source identifier (e.g., "http", "simulator")
	Name() string

	// Pull fetches the next batch
	// ctx: context for cancellation and timeouts
	Pull(ctx context.Context) (Batch, error)
}

// Source pushes readings to a sink until ctx is cancelled
type Source interface {
	// Name returns the source identifier (e.g., "websocket", "mqtt")
	Name() string

	// Run blocks, delivering readings to sink, until ctx is done or the source gives up
	Run(ctx context.Context, sink Sink) error
}

// Registry holds all configured sources
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry, replacing any source with the same name
func (r *Registry) Register(s Source) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources[s.Name()] = s
}

// Get retrieves a source by name
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[name]
	return s, ok
}

// All returns all registered sources ordered by name
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name() < sources[j].Name()
	})
	return sources
}

// RunAll runs every registered source until ctx is done and returns once all have stopped
func (r *Registry) RunAll(ctx context.Context, sink Sink) {
	var wg sync.WaitGroup
	for _, s := range r.All() {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			if err := s.Run(ctx, sink); err != nil && ctx.Err() == nil {
				logSourceError(s.Name(), err)
			}
		}(s)
	}
	wg.Wait()
}

func logSourceError(name string, err error) {
	log.Printf("❌ Source %s stopped: %v", name, err)
}
