package models

import "fmt"

// Status is the tri-state severity of a single sensor value
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// StatusBand holds the warning and critical edges used by the status classifier.
// These are independent of the SensorRegistry display ranges.
type StatusBand struct {
	WarningLow   float64 `json:"warning_low" mapstructure:"warning_low"`
	WarningHigh  float64 `json:"warning_high" mapstructure:"warning_high"`
	CriticalLow  float64 `json:"critical_low" mapstructure:"critical_low"`
	CriticalHigh float64 `json:"critical_high" mapstructure:"critical_high"`
}

// Validate checks that the critical band encloses the warning band
func (b StatusBand) Validate() error {
	if b.WarningLow >= b.WarningHigh {
		return fmt.Errorf("warning low (%v) must be less than warning high (%v)", b.WarningLow, b.WarningHigh)
	}
	if b.CriticalLow > b.WarningLow || b.CriticalHigh < b.WarningHigh {
		return fmt.Errorf("critical band [%v, %v] must enclose warning band [%v, %v]",
			b.CriticalLow, b.CriticalHigh, b.WarningLow, b.WarningHigh)
	}
	return nil
}

// AlertBands maps sensor keys to their status bands
type AlertBands map[string]StatusBand

// DefaultAlertBands returns the hardcoded bands used for per-reading status
func DefaultAlertBands() AlertBands {
	return AlertBands{
		SensorKeyTemperature: {WarningLow: 15, WarningHigh: 30, CriticalLow: 10, CriticalHigh: 35},
		SensorKeyHumidity:    {WarningLow: 30, WarningHigh: 70, CriticalLow: 20, CriticalHigh: 80},
		SensorKeyMoisture:    {WarningLow: 10, WarningHigh: 18, CriticalLow: 8, CriticalHigh: 20},
	}
}

// Clone returns a copy of the bands table
func (a AlertBands) Clone() AlertBands {
	out := make(AlertBands, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
