package source

import (
	"context"

	"github.com/manslikestiffler/smart-granary/pkg/api"
)

// HTTPPuller fetches the full reading log from a smart granary API
type HTTPPuller struct {
	client *api.Client
}

// NewHTTPPuller creates a puller using client
func NewHTTPPuller(client *api.Client) *HTTPPuller {
	return &HTTPPuller{client: client}
}

// Name returns the source identifier
func (p *HTTPPuller) Name() string {
	return "http"
}

// Pull fetches /api/logs. The response is the whole dataset.
func (p *HTTPPuller) Pull(ctx context.Context) (Batch, error) {
	readings, err := p.client.GetLogs(ctx)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Source: p.Name(), Readings: readings, Snapshot: true}, nil
}
