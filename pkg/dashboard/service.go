package dashboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/aggregate"
	"github.com/manslikestiffler/smart-granary/pkg/alerting"
	"github.com/manslikestiffler/smart-granary/pkg/analytics"
	"github.com/manslikestiffler/smart-granary/pkg/buffer"
	"github.com/manslikestiffler/smart-granary/pkg/filter"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
	"github.com/manslikestiffler/smart-granary/pkg/source"
)

const (
	DefaultWindow    = 30 * time.Minute
	DefaultRetention = 24 * time.Hour
)

// Broadcaster fans realtime messages out to connected clients
type Broadcaster interface {
	BroadcastJSON(v interface{})
	BroadcastAlert(alert interface{})
}

// Publisher forwards readings and alerts to a message bus
type Publisher interface {
	PublishReadings(ctx context.Context, readings []models.Reading) error
	PublishAlerts(ctx context.Context, alerts []models.Alert) error
}

// Store persists the dataset
type Store interface {
	SaveReadings(ctx context.Context, readings []models.Reading) error
	SaveAlerts(ctx context.Context, alerts []models.Alert) error
}

// Option configures a Service
type Option func(*Service)

// WithWindow sets the default snapshot window
func WithWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithRetention sets how long the buffer keeps readings
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		s.retention = retention
	}
}

// WithInterval sets the default aggregation interval
func WithInterval(interval models.Interval) Option {
	return func(s *Service) {
		if interval.Valid() {
			s.interval = interval
		}
	}
}

// WithClock sets the clock shared by the buffer and the alert monitor
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.now = clock
	}
}

// WithSeverityFactor sets the alert monitor's severity factor
func WithSeverityFactor(f float64) Option {
	return func(s *Service) {
		s.monitorOpts = append(s.monitorOpts, alerting.WithSeverityFactor(f))
	}
}

// WithAggregateOptions passes options to the aggregator
func WithAggregateOptions(opts ...aggregate.Option) Option {
	return func(s *Service) {
		s.aggregateOpts = append(s.aggregateOpts, opts...)
	}
}

// WithAnalyticsOptions passes options to the analytics engine
func WithAnalyticsOptions(opts ...analytics.Option) Option {
	return func(s *Service) {
		s.analyticsOpts = append(s.analyticsOpts, opts...)
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		s.broadcaster = b
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithStore(st Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// Service runs the realtime pipeline: it buffers incoming readings, raises
// alerts on the latest one and builds dashboard views on demand.
type Service struct {
	// ingestMu serializes HandleBatch across concurrently running sources
	ingestMu sync.Mutex
	mu       sync.RWMutex
	base     models.SensorRegistry
	registry models.SensorRegistry
	settings models.Settings

	buffer     *buffer.RollingBuffer
	monitor    *alerting.Monitor
	classifier *alerting.Classifier
	filters    *filter.Engine

	window        time.Duration
	retention     time.Duration
	interval      models.Interval
	now           func() time.Time
	monitorOpts   []alerting.MonitorOption
	aggregateOpts []aggregate.Option
	analyticsOpts []analytics.Option

	broadcaster Broadcaster
	publisher   Publisher
	store       Store
}

// NewService creates a service over registry (display ranges) and bands (status bands)
func NewService(registry models.SensorRegistry, bands models.AlertBands, opts ...Option) (*Service, error) {
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor registry: %w", err)
	}

	s := &Service{
		base:      registry.Clone(),
		registry:  registry.Clone(),
		settings:  models.DefaultSettings(registry),
		window:    DefaultWindow,
		retention: DefaultRetention,
		interval:  models.IntervalHour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	classifier, err := alerting.NewClassifier(bands)
	if err != nil {
		return nil, err
	}
	s.classifier = classifier

	s.buffer = buffer.NewRollingBuffer(s.retention, buffer.WithClock(s.now))
	s.monitor = alerting.NewMonitor(s.registry, append([]alerting.MonitorOption{alerting.WithClock(s.now)}, s.monitorOpts...)...)
	s.filters = filter.NewEngine(s.registry)

	return s, nil
}

// HandleBatch ingests a batch from a reading source. It implements source.Sink.
// A snapshot batch replaces the buffer; only its readings newer than the
// previous latest are treated as fresh. Batches are handled one at a time.
func (s *Service) HandleBatch(ctx context.Context, batch source.Batch) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	previous, hadPrevious := s.buffer.Latest()

	var accepted int
	if batch.Snapshot {
		accepted = s.buffer.Replace(batch.Readings)
	} else {
		accepted = s.buffer.IngestBatch(batch.Readings)
		if skipped := len(batch.Readings) - accepted; skipped > 0 {
			log.Printf("⚠ Skipped %d malformed readings from %s", skipped, batch.Source)
		}
	}
	if accepted == 0 {
		return
	}

	fresh := validReadings(batch.Readings)
	if batch.Snapshot && hadPrevious {
		fresh = newerThan(fresh, previous.Timestamp)
	}

	alerts := s.monitor.EvaluateLatest(s.buffer.Snapshot(s.window))

	s.broadcast(fresh, alerts)
	s.forward(ctx, batch, fresh, alerts)
}

// Restore loads previously stored readings into the buffer without raising
// alerts or forwarding them
func (s *Service) Restore(readings []models.Reading) int {
	return s.buffer.IngestBatch(readings)
}

// Ingest stores readings pushed by a client and returns how many were accepted
func (s *Service) Ingest(ctx context.Context, readings []models.Reading) int {
	valid := validReadings(readings)
	s.HandleBatch(ctx, source.Batch{Source: "push", Readings: valid})
	return len(valid)
}

func (s *Service) broadcast(fresh []models.Reading, alerts []models.Alert) {
	if s.broadcaster == nil {
		return
	}
	for _, r := range fresh {
		envelope, err := parser.NewEnvelope(r)
		if err != nil {
			log.Printf("❌ Error building envelope for reading %d: %v", r.ID, err)
			continue
		}
		s.broadcaster.BroadcastJSON(envelope)
	}
	for _, a := range alerts {
		s.broadcaster.BroadcastAlert(a)
	}
}

func (s *Service) forward(ctx context.Context, batch source.Batch, fresh []models.Reading, alerts []models.Alert) {
	if len(fresh) == 0 && len(alerts) == 0 {
		return
	}

	if s.store != nil {
		if err := s.store.SaveReadings(ctx, fresh); err != nil {
			log.Printf("❌ Error saving readings from %s: %v", batch.Source, err)
		}
		if err := s.store.SaveAlerts(ctx, alerts); err != nil {
			log.Printf("❌ Error saving alerts: %v", err)
		}
	}

	if s.publisher != nil {
		// Readings consumed from the bus are not published back to it.
		if batch.Source != "kafka" {
			if err := s.publisher.PublishReadings(ctx, fresh); err != nil {
				log.Printf("❌ Error publishing readings: %v", err)
			}
		}
		if err := s.publisher.PublishAlerts(ctx, alerts); err != nil {
			log.Printf("❌ Error publishing alerts: %v", err)
		}
	}
}

func validReadings(readings []models.Reading) []models.Reading {
	out := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		if r.IsValid() {
			out = append(out, r)
		}
	}
	return out
}

func newerThan(readings []models.Reading, t time.Time) []models.Reading {
	out := readings[:0]
	for _, r := range readings {
		if r.Timestamp.After(t) {
			out = append(out, r)
		}
	}
	return out
}
