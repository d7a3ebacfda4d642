// Package model defines the wire and domain types shared by the state
// engine, the transport bridges, and the HTTP API.
//
// All timestamps are epoch milliseconds, matching the device firmware and
// the dashboard wire format.
package model

// DeviceStatus is the derived liveness state of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// TelemetryReading is a single sensor report from one device.
// Immutable once created; produced by a transport adapter.
type TelemetryReading struct {
	DeviceID    string  `json:"deviceId"`
	TS          int64   `json:"ts"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	LED         bool    `json:"led"`
}

// DataPoint is a telemetry reading projected for history storage.
type DataPoint struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Point converts a reading into its history projection.
func (r TelemetryReading) Point() DataPoint {
	return DataPoint{
		Timestamp:   r.TS,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	}
}

// Device is the registry view of one device.
type Device struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      DeviceStatus      `json:"status"`
	LastSeen    int64             `json:"lastSeen"`
	CurrentData *TelemetryReading `json:"currentData,omitempty"`
}

// Threshold holds per-device alerting bounds. Each bound is optional;
// a nil bound disables that check. Enabled gates the whole rule set.
type Threshold struct {
	DeviceID       string   `json:"deviceId"`
	TemperatureMax *float64 `json:"temperatureMax,omitempty"`
	TemperatureMin *float64 `json:"temperatureMin,omitempty"`
	HumidityMax    *float64 `json:"humidityMax,omitempty"`
	HumidityMin    *float64 `json:"humidityMin,omitempty"`
	Enabled        bool     `json:"enabled"`
}

// AlertType identifies which bound a reading violated.
type AlertType string

const (
	AlertTemperatureHigh AlertType = "temperature_high"
	AlertTemperatureLow  AlertType = "temperature_low"
	AlertHumidityHigh    AlertType = "humidity_high"
	AlertHumidityLow     AlertType = "humidity_low"
)

// Alert records one threshold violation. Timestamp is the reading's
// timestamp, not evaluation wall-clock time.
type Alert struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"deviceId"`
	Type         AlertType `json:"type"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    int64     `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
	Message      string    `json:"message"`
}

// Command is a device control verb.
type Command string

const (
	CommandLEDToggle Command = "LED_TOGGLE"
	CommandLEDOn     Command = "LED_ON"
	CommandLEDOff    Command = "LED_OFF"
)

// ControlCommand is sent from the server to a device.
type ControlCommand struct {
	Command Command `json:"command"`
	Value   bool    `json:"value"`
	TS      int64   `json:"ts"`
}

// AckResponse is a device's acknowledgment of a control command.
type AckResponse struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	TS      int64  `json:"ts"`
	Message string `json:"message,omitempty"`
}

// Float returns a pointer to the given float value.
// It is useful for initializing optional threshold bounds.
func Float(v float64) *float64 { return &v }
