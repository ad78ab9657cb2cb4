package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/parser"
	"github.com/manslikestiffler/smart-granary/pkg/source"
	"github.com/segmentio/kafka-go"
)

// messageReader is the subset of *kafka.Reader used by the consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source consumes reading JSON from a Kafka topic
type Source struct {
	reader messageReader
	parser parser.Parser
	topic  string
}

// NewSource creates a consumer-group reader on the readings topic
func NewSource(cfg Config) (*Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.ReadingsTopic == "" {
		return nil, fmt.Errorf("no readings topic configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.ReadingsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newSource(reader, cfg.ReadingsTopic), nil
}

func newSource(reader messageReader, topic string) *Source {
	return &Source{reader: reader, parser: &parser.JSONParser{}, topic: topic}
}

// Name returns the source identifier
func (s *Source) Name() string {
	return "kafka"
}

// Run fetches messages until ctx is done. Unparsable messages are committed and skipped.
func (s *Source) Run(ctx context.Context, sink source.Sink) error {
	defer s.reader.Close()
	log.Printf("✓ Consuming readings from Kafka topic %s", s.topic)

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		readings, err := s.parser.Parse(msg.Value)
		if err != nil {
			log.Printf("⚠ Skipping Kafka message at offset %d: %v", msg.Offset, err)
		} else if len(readings) > 0 {
			sink.HandleBatch(ctx, source.Batch{Source: s.Name(), Readings: readings})
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("⚠ Failed to commit offset %d: %v", msg.Offset, err)
		}
	}
}
