package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/alerting"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
	"github.com/manslikestiffler/smart-granary/pkg/source"
)

var now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu        sync.Mutex
	envelopes []parser.Envelope
	alerts    []models.Alert
	readings  []models.Reading
	saved     []models.Alert
	published []models.Reading
}

func (r *recorder) BroadcastJSON(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if env, ok := v.(parser.Envelope); ok {
		r.envelopes = append(r.envelopes, env)
	}
}

func (r *recorder) BroadcastAlert(alert interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert.(models.Alert))
}

func (r *recorder) SaveReadings(_ context.Context, readings []models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, readings...)
	return nil
}

func (r *recorder) SaveAlerts(_ context.Context, alerts []models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, alerts...)
	return nil
}

func (r *recorder) PublishReadings(_ context.Context, readings []models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, readings...)
	return nil
}

func (r *recorder) PublishAlerts(_ context.Context, _ []models.Alert) error {
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{
		WithClock(func() time.Time { return now }),
		WithBroadcaster(rec),
		WithStore(rec),
		WithPublisher(rec),
	}, opts...)

	s, err := NewService(models.DefaultSensorRegistry(), models.DefaultAlertBands(), opts...)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return s, rec
}

func temp(ts time.Time, v float64) models.Reading {
	return models.NewReading(ts).WithValue(models.SensorKeyTemperature, v)
}

func TestService_HandleBatch(t *testing.T) {
	s, rec := newTestService(t)

	s.HandleBatch(context.Background(), source.Batch{
		Source:   "simulator",
		Readings: []models.Reading{temp(now.Add(-time.Minute), 20), temp(now, 25)},
	})

	if s.Len() != 2 {
		t.Fatalf("Expected 2 buffered readings, got %d", s.Len())
	}
	if len(rec.envelopes) != 2 {
		t.Errorf("Expected 2 broadcast readings, got %d", len(rec.envelopes))
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Type != models.AlertTypeError {
		t.Fatalf("Expected one error alert for the latest reading, got %+v", rec.alerts)
	}
	if len(rec.readings) != 2 || len(rec.saved) != 1 {
		t.Errorf("Expected readings and alerts to be stored, got %d and %d", len(rec.readings), len(rec.saved))
	}
	if len(rec.published) != 2 {
		t.Errorf("Expected 2 published readings, got %d", len(rec.published))
	}
}

func TestService_HandleBatch_KafkaNotRepublished(t *testing.T) {
	s, rec := newTestService(t)

	s.HandleBatch(context.Background(), source.Batch{Source: "kafka", Readings: []models.Reading{temp(now, 20)}})

	if len(rec.published) != 0 {
		t.Errorf("Expected readings from kafka not to be published, got %d", len(rec.published))
	}
	if len(rec.readings) != 1 {
		t.Errorf("Expected reading to be stored, got %d", len(rec.readings))
	}
}

func TestService_HandleBatch_Snapshot(t *testing.T) {
	s, rec := newTestService(t)
	first := []models.Reading{temp(now.Add(-2*time.Minute), 20), temp(now.Add(-time.Minute), 21)}

	s.HandleBatch(context.Background(), source.Batch{Source: "http", Snapshot: true, Readings: first})
	s.HandleBatch(context.Background(), source.Batch{
		Source:   "http",
		Snapshot: true,
		Readings: append(append([]models.Reading{}, first...), temp(now, 22)),
	})

	if s.Len() != 3 {
		t.Errorf("Expected 3 buffered readings, got %d", s.Len())
	}
	if len(rec.envelopes) != 3 {
		t.Errorf("Expected only fresh readings to be broadcast (3), got %d", len(rec.envelopes))
	}
	if len(rec.readings) != 3 {
		t.Errorf("Expected only fresh readings to be stored (3), got %d", len(rec.readings))
	}
}

// blockingStore holds SaveReadings until release is closed
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) SaveReadings(_ context.Context, _ []models.Reading) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingStore) SaveAlerts(_ context.Context, _ []models.Alert) error {
	return nil
}

func TestService_HandleBatch_Serialized(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}, 2), release: make(chan struct{})}
	s, rec := newTestService(t, WithStore(store))

	first := make(chan struct{})
	go func() {
		s.HandleBatch(context.Background(), source.Batch{Source: "mqtt", Readings: []models.Reading{temp(now.Add(-time.Minute), 25)}})
		close(first)
	}()
	<-store.entered

	second := make(chan struct{})
	go func() {
		s.HandleBatch(context.Background(), source.Batch{Source: "push", Readings: []models.Reading{temp(now, 26)}})
		close(second)
	}()

	time.Sleep(50 * time.Millisecond)
	if s.Len() != 1 {
		t.Errorf("Expected second batch to wait for the first, got %d buffered readings", s.Len())
	}
	select {
	case <-second:
		t.Fatal("Expected second batch to block while the first is in progress")
	default:
	}

	close(store.release)
	<-first
	<-second

	if s.Len() != 2 {
		t.Fatalf("Expected 2 buffered readings, got %d", s.Len())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.alerts) != 2 {
		t.Fatalf("Expected one alert per batch, got %d", len(rec.alerts))
	}
	if rec.alerts[0].Timestamp.Equal(rec.alerts[1].Timestamp) {
		t.Error("Expected each batch to evaluate its own latest reading")
	}
}

func TestService_HandleBatch_Malformed(t *testing.T) {
	s, rec := newTestService(t)

	s.HandleBatch(context.Background(), source.Batch{Source: "push", Readings: []models.Reading{{}}})

	if s.Len() != 0 {
		t.Errorf("Expected malformed reading to be rejected, got %d buffered", s.Len())
	}
	if len(rec.envelopes) != 0 || len(rec.readings) != 0 {
		t.Error("Expected nothing broadcast or stored")
	}
}

func TestService_Ingest(t *testing.T) {
	s, _ := newTestService(t)

	accepted := s.Ingest(context.Background(), []models.Reading{temp(now, 20), {}})
	if accepted != 1 {
		t.Errorf("Expected 1 accepted reading, got %d", accepted)
	}
}

func TestService_View(t *testing.T) {
	s, _ := newTestService(t)
	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{
		temp(now.Add(-40*time.Minute), 10),
		temp(now.Add(-10*time.Minute), 20),
		temp(now.Add(-5*time.Minute), 22),
	}})

	view, err := s.View(Query{Interval: models.IntervalMinute})
	if err != nil {
		t.Fatalf("Failed to build view: %v", err)
	}

	if len(view.FilteredData) != 2 {
		t.Fatalf("Expected 2 readings in window, got %d", len(view.FilteredData))
	}
	summary, ok := view.Analytics[models.SensorKeyTemperature]
	if !ok {
		t.Fatal("Expected temperature summary")
	}
	if summary.Mean != 21 {
		t.Errorf("Expected mean 21, got %v", summary.Mean)
	}
	if _, ok := view.Analytics[models.SensorKeyHumidity]; ok {
		t.Error("Expected humidity to be omitted")
	}
	if len(view.AggregatedBuckets) != 2 {
		t.Errorf("Expected 2 minute buckets, got %d", len(view.AggregatedBuckets))
	}
	if view.LastReading == nil || !view.LastReading.Timestamp.Equal(now.Add(-5*time.Minute)) {
		t.Errorf("Expected last reading at -5m, got %+v", view.LastReading)
	}
	if view.Statuses[models.SensorKeyTemperature] != models.StatusNormal {
		t.Errorf("Expected temperature normal, got %s", view.Statuses[models.SensorKeyTemperature])
	}

	wide, err := s.View(Query{Window: time.Hour})
	if err != nil {
		t.Fatalf("Failed to build view: %v", err)
	}
	if len(wide.FilteredData) != 3 {
		t.Errorf("Expected 3 readings in a one hour window, got %d", len(wide.FilteredData))
	}
}

func TestService_View_Filter(t *testing.T) {
	s, _ := newTestService(t)
	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{
		temp(now.Add(-2*time.Minute), 20),
		temp(now.Add(-time.Minute), 40),
	}})

	view, err := s.View(Query{Filter: &models.FilterState{Thresholds: models.ThresholdWarning}})
	if err != nil {
		t.Fatalf("Failed to build view: %v", err)
	}
	if len(view.FilteredData) != 1 {
		t.Errorf("Expected 1 out-of-range reading, got %d", len(view.FilteredData))
	}

	if _, err := s.View(Query{Filter: &models.FilterState{Thresholds: "bogus"}}); !errors.Is(err, models.ErrInvalidFilter) {
		t.Errorf("Expected ErrInvalidFilter, got %v", err)
	}

	if _, err := s.Filters().Update(models.FilterPatch{Thresholds: ptr(models.ThresholdNormal)}); err != nil {
		t.Fatalf("Failed to update filter: %v", err)
	}
	stored, _ := s.View(Query{})
	if len(stored.FilteredData) != 1 || stored.FilteredData[0].ID != now.Add(-2*time.Minute).UnixMilli() {
		t.Errorf("Expected stored filter to keep the normal reading, got %+v", stored.FilteredData)
	}
}

func TestService_UpdateSettings(t *testing.T) {
	s, rec := newTestService(t)

	settings := s.Settings()
	settings.Thresholds[models.SensorKeyTemperature] = models.Range{Min: 15, Max: 40}
	if _, err := s.UpdateSettings(settings); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{temp(now, 25)}})
	if len(rec.alerts) != 0 {
		t.Errorf("Expected no alert with widened range, got %d", len(rec.alerts))
	}
	if s.Registry()[models.SensorKeyTemperature].Ranges.Max != 40 {
		t.Error("Expected registry to reflect the override")
	}

	bad := s.Settings()
	bad.Thresholds = map[string]models.Range{"pressure": {Min: 0, Max: 1}}
	if _, err := s.UpdateSettings(bad); err == nil {
		t.Error("Expected error for unknown sensor key")
	}
	if s.Registry()[models.SensorKeyTemperature].Ranges.Max != 40 {
		t.Error("Expected failed update to leave settings unchanged")
	}
}

func TestService_Stats(t *testing.T) {
	s, _ := newTestService(t)
	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{
		temp(now.Add(-2*time.Minute), 20),
		temp(now.Add(-time.Minute), 22),
	}})

	stats, err := s.Stats(models.SensorKeyTemperature)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Current != 22 || stats.Trend != 2 {
		t.Errorf("Expected current 22 and trend 2, got %+v", stats)
	}

	if _, err := s.Stats("pressure"); !errors.Is(err, alerting.ErrUnknownSensor) {
		t.Errorf("Expected ErrUnknownSensor, got %v", err)
	}
}

func TestService_Annotated(t *testing.T) {
	s, _ := newTestService(t)
	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{
		temp(now.Add(-time.Minute), 22).WithValue(models.SensorKeyHumidity, 85),
	}})

	annotated := s.Annotated()
	if len(annotated) != 1 {
		t.Fatalf("Expected 1 annotated reading, got %d", len(annotated))
	}
	if annotated[0].Overall != models.StatusCritical {
		t.Errorf("Expected overall critical, got %s", annotated[0].Overall)
	}
}

func TestService_Alerts(t *testing.T) {
	s, _ := newTestService(t)
	s.HandleBatch(context.Background(), source.Batch{Readings: []models.Reading{temp(now, 25)}})

	if len(s.Alerts(time.Time{})) != 1 {
		t.Errorf("Expected 1 alert in log, got %d", len(s.Alerts(time.Time{})))
	}
	if len(s.Alerts(now)) != 0 {
		t.Errorf("Expected no alerts after now, got %d", len(s.Alerts(now)))
	}
}

func TestNewService_InvalidBands(t *testing.T) {
	bands := models.AlertBands{models.SensorKeyTemperature: {WarningLow: 30, WarningHigh: 15}}
	if _, err := NewService(models.DefaultSensorRegistry(), bands); err == nil {
		t.Error("Expected error for invalid bands")
	}
}

func ptr[T any](v T) *T {
	return &v
}
