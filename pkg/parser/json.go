package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/relvacode/iso8601"
)

// Envelope types sent by the realtime feed
const (
	EnvelopeSensorData = "sensorData"
	EnvelopeAck        = "ack"
)

// Envelope wraps a reading pushed over the realtime feed
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        int64           `json:"id,omitempty"`
}

// NewEnvelope wraps r as a sensorData message
func NewEnvelope(r models.Reading) (Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal reading: %w", err)
	}
	return Envelope{
		Type:      EnvelopeSensorData,
		Timestamp: r.ISOTimestamp(),
		Data:      data,
	}, nil
}

// JSONParser accepts a reading object, an array of readings or a sensorData envelope
type JSONParser struct{}

// Format returns the parser identifier
func (p *JSONParser) Format() string {
	return "json"
}

// ContentType returns the accepted media type
func (p *JSONParser) ContentType() string {
	return "application/json"
}

// Parse decodes the payload
func (p *JSONParser) Parse(payload []byte) ([]models.Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var readings []models.Reading
		if err := json.Unmarshal(trimmed, &readings); err != nil {
			return nil, fmt.Errorf("failed to decode readings: %w", err)
		}
		return readings, nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	switch probe.Type {
	case "":
		var r models.Reading
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("failed to decode reading: %w", err)
		}
		return []models.Reading{r}, nil
	case EnvelopeSensorData:
		r, err := parseEnvelope(trimmed)
		if err != nil {
			return nil, err
		}
		return []models.Reading{r}, nil
	case EnvelopeAck:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported message type: %s", probe.Type)
	}
}

// parseEnvelope reads the data object, falling back to the envelope timestamp
func parseEnvelope(payload []byte) (models.Reading, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return models.Reading{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return models.Reading{}, fmt.Errorf("sensorData envelope without data")
	}

	var r models.Reading
	if err := json.Unmarshal(env.Data, &r); err != nil {
		return models.Reading{}, fmt.Errorf("failed to decode envelope data: %w", err)
	}

	if r.Timestamp.IsZero() && env.Timestamp != "" {
		ts, err := iso8601.ParseString(env.Timestamp)
		if err != nil {
			return models.Reading{}, fmt.Errorf("invalid envelope timestamp %q: %w", env.Timestamp, err)
		}
		r.Timestamp = ts
	}
	if r.ID == 0 && !r.Timestamp.IsZero() {
		r.ID = r.Timestamp.UnixMilli()
	}

	return r, nil
}
