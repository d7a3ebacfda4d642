// Package sensorhub holds the server configuration for the IoT telemetry
// dashboard backend.
package sensorhub

import (
	"fmt"
	"time"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/obs"
	"github.com/iotlab/sensorhub/threshold"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats"`
	Simulator SimulatorConfig `yaml:"simulator"`

	// Telemetry configures the OpenTelemetry bootstrap. Optional.
	Telemetry *obs.Config `yaml:"telemetry,omitempty"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host" default:"" env:"SERVER_HOST"`
	Port int    `yaml:"port" default:"3001" env:"SERVER_PORT" validate:"gt=0,lte=65535"`

	// CORSOrigin is sent back as Access-Control-Allow-Origin.
	CORSOrigin string `yaml:"corsOrigin" default:"http://localhost:5173" env:"CORS_ORIGIN"`
}

// Addr returns the host:port the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfig carries the state engine's tunables.
type EngineConfig struct {
	// BufferCapacity bounds per-device telemetry history.
	BufferCapacity int `yaml:"bufferCapacity" default:"500" env:"BUFFER_CAPACITY" validate:"gt=0"`

	// OfflineTimeout is the silence window before a device is marked offline.
	OfflineTimeout time.Duration `yaml:"offlineTimeout" default:"5s" env:"OFFLINE_TIMEOUT" validate:"gt=0"`

	// AlertCooldown is the dedup window for repeat alerts.
	AlertCooldown time.Duration `yaml:"alertCooldown" default:"60s" env:"ALERT_COOLDOWN" validate:"gt=0"`

	// SweepInterval is the liveness monitor tick period.
	SweepInterval time.Duration `yaml:"sweepInterval" default:"1s" env:"SWEEP_INTERVAL" validate:"gt=0"`

	// Default threshold bounds for devices without a custom rule set.
	TemperatureMax float64 `yaml:"temperatureMax" default:"35"`
	TemperatureMin float64 `yaml:"temperatureMin" default:"15"`
	HumidityMax    float64 `yaml:"humidityMax" default:"80"`
	HumidityMin    float64 `yaml:"humidityMin" default:"30"`
}

// ToEngine converts the section into the engine's own config type.
func (c EngineConfig) ToEngine() engine.Config {
	return engine.Config{
		BufferCapacity: c.BufferCapacity,
		OfflineTimeout: c.OfflineTimeout,
		AlertCooldown:  c.AlertCooldown,
		SweepInterval:  c.SweepInterval,
		Thresholds: threshold.Defaults{
			TemperatureMax: c.TemperatureMax,
			TemperatureMin: c.TemperatureMin,
			HumidityMax:    c.HumidityMax,
			HumidityMin:    c.HumidityMin,
		},
	}
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled   *bool  `yaml:"enabled" default:"true" env:"MQTT_ENABLED"`
	BrokerURL string `yaml:"brokerUrl" default:"tcp://localhost:1883" env:"MQTT_BROKER_URL"`
	ClientID  string `yaml:"clientId" default:"iot-dashboard-server" env:"MQTT_CLIENT_ID"`

	// TopicPrefix is the root of the device topic tree:
	// <prefix>/<deviceId>/telemetry|ack|control.
	TopicPrefix string `yaml:"topicPrefix" default:"iot/classroom" env:"MQTT_TOPIC_PREFIX"`

	QoS byte `yaml:"qos" default:"1" validate:"lte=2"`
}

// IsEnabled returns true if the MQTT bridge should connect. Defaults to true.
func (c *MQTTConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// NATSConfig configures the NATS bridge.
type NATSConfig struct {
	Enabled *bool  `yaml:"enabled" default:"false" env:"NATS_ENABLED"`
	URL     string `yaml:"url" default:"nats://localhost:4222" env:"NATS_URL"`
	Name    string `yaml:"name" default:"iot-dashboard-server" env:"NATS_NAME"`

	// SubjectPrefix is the root of the device subject tree:
	// <prefix>.<deviceId>.telemetry|ack|control.
	SubjectPrefix string `yaml:"subjectPrefix" default:"iot.classroom" env:"NATS_SUBJECT_PREFIX"`
}

// IsEnabled returns true if the NATS bridge should connect. Defaults to false.
func (c *NATSConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SimulatorConfig configures the mock device fleet.
type SimulatorConfig struct {
	Enabled  *bool         `yaml:"enabled" default:"true" env:"SIMULATOR_ENABLED"`
	Interval time.Duration `yaml:"interval" default:"2s" env:"SIMULATOR_INTERVAL" validate:"gt=0"`
}

// IsEnabled returns true if the simulator should run. Defaults to true.
func (c *SimulatorConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}
