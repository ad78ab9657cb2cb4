package main

import (
	"fmt"
	"log"

	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/broker"
	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/manslikestiffler/smart-granary/pkg/source"
)

// InitSourceRegistry registers a reading source for every configured kind
func InitSourceRegistry(cfg *config.Config, registry models.SensorRegistry) (*source.Registry, error) {
	sources := source.NewRegistry()

	for _, kind := range cfg.Source.Kinds {
		src, err := newSource(kind, cfg, registry)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s source: %w", kind, err)
		}
		log.Printf("✓ Registering source: %s", kind)
		sources.Register(src)
	}

	return sources, nil
}

func newSource(kind string, cfg *config.Config, registry models.SensorRegistry) (source.Source, error) {
	switch kind {
	case config.SourceSimulator:
		sim := source.NewSimulator(registry, source.WithZones(cfg.Source.Zones...))
		return source.NewPollingService(sim, cfg.Source.SimulatorInterval), nil
	case config.SourceHTTP:
		client := api.NewClient(cfg.Source.BaseURL)
		return source.NewPollingService(source.NewHTTPPuller(client), cfg.Source.PollInterval), nil
	case config.SourceWebSocket:
		return source.NewWebSocketSource(cfg.Source.WebSocketURL,
			source.WithReconnectDelay(cfg.Source.ReconnectDelay),
			source.WithMaxRetries(cfg.Source.MaxRetries),
		), nil
	case config.SourceMQTT:
		return source.NewMQTTSource(source.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}), nil
	case config.SourceKafka:
		return broker.NewSource(kafkaConfig(cfg))
	default:
		return nil, fmt.Errorf("unknown source kind: %s", kind)
	}
}

func kafkaConfig(cfg *config.Config) broker.Config {
	return broker.Config{
		Brokers:       cfg.Kafka.Brokers,
		ReadingsTopic: cfg.Kafka.ReadingsTopic,
		AlertsTopic:   cfg.Kafka.AlertsTopic,
		GroupID:       cfg.Kafka.GroupID,
	}
}
