package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// EventKind classifies a line emitted by the serial temperature controller
type EventKind string

const (
	EventReading EventKind = "reading"
	EventError   EventKind = "error"
	EventStatus  EventKind = "status"
	EventAlert   EventKind = "alert"
)

// Serial line prefixes
const (
	prefixTemp     = "TEMP,"
	prefixError    = "ERROR:"
	prefixStable   = "Temperature STABLE."
	prefixExceeded = "Temperature EXCEEDED"
	prefixBelow    = "Temperature BELOW"
)

// ErrUnrecognizedLine is returned for lines outside the controller protocol
var ErrUnrecognizedLine = errors.New("unrecognized serial line")

// SerialEvent is one decoded controller line
type SerialEvent struct {
	Kind    EventKind
	Raw     string
	Value   string
	Reading *models.Reading
}

// MarshalJSON renders the single-key message the serial page listens for
func (e SerialEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventReading:
		return json.Marshal(map[string]string{"temperature": e.Value})
	case EventError:
		return json.Marshal(map[string]string{"error": e.Raw})
	case EventStatus:
		return json.Marshal(map[string]string{"status": e.Raw})
	case EventAlert:
		return json.Marshal(map[string]string{"alert": e.Raw})
	default:
		return nil, fmt.Errorf("unknown serial event kind: %s", e.Kind)
	}
}

// ParseLine decodes one controller line. Temperature lines also carry a
// reading stamped at now; an unparsable temperature still yields the event.
func ParseLine(line string, now time.Time) (SerialEvent, error) {
	line = strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(line, prefixTemp):
		parts := strings.Split(line, ",")
		value := strings.TrimSpace(parts[1])
		event := SerialEvent{Kind: EventReading, Raw: line, Value: value}
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			r := models.NewReading(now).WithValue(models.SensorKeyTemperature, v)
			event.Reading = &r
		}
		return event, nil
	case strings.HasPrefix(line, prefixError):
		return SerialEvent{Kind: EventError, Raw: line}, nil
	case strings.HasPrefix(line, prefixStable):
		return SerialEvent{Kind: EventStatus, Raw: line}, nil
	case strings.HasPrefix(line, prefixExceeded), strings.HasPrefix(line, prefixBelow):
		return SerialEvent{Kind: EventAlert, Raw: line}, nil
	default:
		return SerialEvent{Raw: line}, ErrUnrecognizedLine
	}
}
