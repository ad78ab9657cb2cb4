package source

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
)

// MQTTConfig holds the broker connection for the MQTT source
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// MQTTSource subscribes to a topic where gateways publish reading JSON
type MQTTSource struct {
	cfg    MQTTConfig
	parser parser.Parser
	// newClient is replaced in tests
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTTSource creates an MQTT source
func NewMQTTSource(cfg MQTTConfig) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("smartgrain-%d", time.Now().UnixNano())
	}
	return &MQTTSource{
		cfg:       cfg,
		parser:    &parser.JSONParser{},
		newClient: mqtt.NewClient,
	}
}

// Name returns the source identifier
func (s *MQTTSource) Name() string {
	return "mqtt"
}

// Run connects, subscribes and blocks until ctx is done
func (s *MQTTSource) Run(ctx context.Context, sink Sink) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(DefaultReconnectDelay)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	handler := s.messageHandler(ctx, sink)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, handler)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("❌ Failed to subscribe to %s: %v", s.cfg.Topic, err)
			return
		}
		log.Printf("✓ Subscribed to MQTT topic %s on %s", s.cfg.Topic, s.cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("⚠ MQTT connection lost: %v", err)
	})

	client := s.newClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.cfg.Broker, token.Error())
	}

	<-ctx.Done()
	client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	return nil
}

func (s *MQTTSource) messageHandler(ctx context.Context, sink Sink) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		readings, err := s.parser.Parse(msg.Payload())
		if err != nil {
			log.Printf("⚠ Failed to parse MQTT message on %s: %v", msg.Topic(), err)
			return
		}
		if len(readings) == 0 {
			return
		}
		sink.HandleBatch(ctx, Batch{Source: s.Name(), Readings: readings})
	}
}
