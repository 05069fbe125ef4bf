// Package events holds the payloads the mirror publishes.
package events

import "time"

// Telemetry with timestamp
//
// example:
// `{"ts": 1756742602000, "values": {"SensorValue:12347:value": 23.5}}`
type Telemetry struct {
	// Unix timestamp in milliseconds
	Timestamp int64 `json:"ts"`
	// Key value pairs of telemetry data measured at the corresponding timestamp
	Values map[string]any `json:"values"`
}

// NewTelemetry stamps values with at.
func NewTelemetry(at time.Time, values map[string]any) Telemetry {
	return Telemetry{Timestamp: at.UnixMilli(), Values: values}
}

// Time of the sample.
func (t Telemetry) Time() time.Time { return time.UnixMilli(t.Timestamp) }
