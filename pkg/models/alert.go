package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType is the kind of threshold crossing
type AlertType string

const (
	AlertTypeError   AlertType = "error"
	AlertTypeWarning AlertType = "warning"
)

// Alert is emitted when a reading crosses a sensor's alert threshold.
type Alert struct {
	ID         uuid.UUID `json:"id"`
	Type       AlertType `json:"type"`
	SensorType string    `json:"sensorType"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
}
