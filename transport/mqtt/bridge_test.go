package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		deviceID string
		kind     string
		ok       bool
	}{
		{"telemetry", "iot/classroom/ESP32_001/telemetry", "ESP32_001", "telemetry", true},
		{"ack", "iot/classroom/ESP32_002/ack", "ESP32_002", "ack", true},
		{"wrong prefix", "iot/lab/ESP32_001/telemetry", "", "", false},
		{"too short", "iot/classroom/telemetry", "", "", false},
		{"too long", "iot/classroom/ESP32_001/telemetry/extra", "", "", false},
		{"empty device", "iot/classroom//telemetry", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deviceID, kind, ok := parseTopic("iot/classroom", tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.deviceID, deviceID)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestDispatchTelemetry(t *testing.T) {
	eng := engine.New(engine.Config{})
	b := NewBridge(eng, Config{})

	b.dispatch("iot/classroom/ESP32_001/telemetry",
		[]byte(`{"ts":1000,"temperature":25.5,"humidity":60,"led":true}`))

	d, err := eng.GetDevice("ESP32_001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, d.Status)
	require.NotNil(t, d.CurrentData)
	// topic wins over any deviceId in the payload
	assert.Equal(t, "ESP32_001", d.CurrentData.DeviceID)
	assert.InDelta(t, 25.5, d.CurrentData.Temperature, 1e-9)
	assert.True(t, d.CurrentData.LED)

	assert.Len(t, eng.History("ESP32_001", 0), 1)
}

func TestDispatchFillsMissingTimestamp(t *testing.T) {
	eng := engine.New(engine.Config{})
	b := NewBridge(eng, Config{})

	b.dispatch("iot/classroom/ESP32_001/telemetry",
		[]byte(`{"temperature":22,"humidity":50}`))

	d, err := eng.GetDevice("ESP32_001")
	require.NoError(t, err)
	require.NotNil(t, d.CurrentData)
	assert.NotZero(t, d.CurrentData.TS)
}

func TestDispatchDropsMalformedPayload(t *testing.T) {
	eng := engine.New(engine.Config{})
	b := NewBridge(eng, Config{})

	b.dispatch("iot/classroom/ESP32_001/telemetry", []byte("not json"))
	b.dispatch("iot/classroom/server/status", []byte(`{"status":"online"}`))
	b.dispatch("garbage", []byte(`{}`))

	// server/status parses as device "server", kind "status": unknown kind,
	// dropped before the engine
	assert.Empty(t, eng.ListDevices())
}

func TestDispatchAck(t *testing.T) {
	eng := engine.New(engine.Config{})
	b := NewBridge(eng, Config{})

	// Acks are logged, never stored; state must be untouched
	b.dispatch("iot/classroom/ESP32_001/ack",
		[]byte(`{"command":"LED_ON","success":true,"ts":1000}`))

	assert.Empty(t, eng.ListDevices())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
	assert.Equal(t, "iot/classroom", cfg.TopicPrefix)
	assert.Equal(t, "iot-dashboard-server", cfg.ClientID)
	assert.Equal(t, byte(1), cfg.QoS)
}
