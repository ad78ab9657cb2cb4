package parser

import (
	"mime"
	"sort"
	"sync"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Parser decodes a transport payload into readings
type Parser interface {
	// Format returns the parser identifier (e.g., "json", "form")
	Format() string

	// ContentType returns the media type this parser accepts
	ContentType() string

	// Parse converts a payload into readings. Readings without a timestamp are
	// returned as-is and rejected downstream.
	Parse(payload []byte) ([]models.Reading, error)
}

// Registry holds all registered parsers
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
	}
}

// DefaultRegistry returns a registry with the JSON and form parsers
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&JSONParser{})
	r.Register(&FormParser{})
	return r
}

// Register adds a parser to the registry
func (r *Registry) Register(p Parser) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers[p.Format()] = p
}

// Get retrieves a parser by format
func (r *Registry) Get(format string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parsers[format]
	return p, ok
}

// ForContentType finds the parser accepting the media type of a Content-Type header
func (r *Registry) ForContentType(contentType string) (Parser, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parsers {
		if p.ContentType() == mediaType {
			return p, true
		}
	}
	return nil, false
}

// All returns all registered parsers ordered by format
func (r *Registry) All() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parsers := make([]Parser, 0, len(r.parsers))
	for _, p := range r.parsers {
		parsers = append(parsers, p)
	}
	sort.Slice(parsers, func(i, j int) bool {
		return parsers[i].Format() < parsers[j].Format()
	})
	return parsers
}
