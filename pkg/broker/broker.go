package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/segmentio/kafka-go"
)

// Config holds the Kafka connection settings
type Config struct {
	Brokers       []string
	ReadingsTopic string
	AlertsTopic   string
	GroupID       string
}

// messageWriter is the subset of *kafka.Writer used by the publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes readings and alerts to Kafka topics as JSON
type Publisher struct {
	readings messageWriter
	alerts   messageWriter
}

// NewPublisher creates writers for the configured topics. An empty topic disables that stream.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	p := &Publisher{}
	if cfg.ReadingsTopic != "" {
		p.readings = newWriter(cfg.Brokers, cfg.ReadingsTopic)
	}
	if cfg.AlertsTopic != "" {
		p.alerts = newWriter(cfg.Brokers, cfg.AlertsTopic)
	}
	return p, nil
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// PublishReadings writes one message per reading keyed by location
func (p *Publisher) PublishReadings(ctx context.Context, readings []models.Reading) error {
	if p.readings == nil || len(readings) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(readings))
	for _, r := range readings {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading %d: %w", r.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(readingKey(r)),
			Value: value,
			Time:  r.Timestamp,
		})
	}

	if err := p.readings.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish readings: %w", err)
	}
	return nil
}

// PublishAlerts writes one message per alert keyed by sensor
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []models.Alert) error {
	if p.alerts == nil || len(alerts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.SensorType),
			Value: value,
			Time:  a.Timestamp,
		})
	}

	if err := p.alerts.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish alerts: %w", err)
	}
	return nil
}

// Close flushes and closes the writers
func (p *Publisher) Close() error {
	var errs []string
	for _, w := range []messageWriter{p.readings, p.alerts} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close kafka writers: %s", strings.Join(errs, "; "))
	}
	return nil
}

func readingKey(r models.Reading) string {
	if r.Location != "" {
		return r.Location
	}
	return "default"
}
