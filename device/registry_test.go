package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/model"
)

func reading(deviceID string, ts int64) model.TelemetryReading {
	return model.TelemetryReading{
		DeviceID:    deviceID,
		TS:          ts,
		Temperature: 25,
		Humidity:    60,
	}
}

func TestUpsertCreatesOnFirstContact(t *testing.T) {
	r := NewRegistry()

	d, changed := r.Upsert(reading("ESP32_001", 1000), 1000)
	assert.True(t, changed)
	assert.Equal(t, "ESP32_001", d.ID)
	assert.Equal(t, "ESP32-ESP32_001", d.Name)
	assert.Equal(t, model.StatusOnline, d.Status)
	assert.Equal(t, int64(1000), d.LastSeen)
	require.NotNil(t, d.CurrentData)
	assert.InDelta(t, 25.0, d.CurrentData.Temperature, 1e-9)
}

func TestUpsertRefreshesWithoutStatusChange(t *testing.T) {
	r := NewRegistry()

	_, changed := r.Upsert(reading("ESP32_001", 1000), 1000)
	require.True(t, changed)

	d, changed := r.Upsert(reading("ESP32_001", 2000), 2000)
	assert.False(t, changed)
	assert.Equal(t, int64(2000), d.LastSeen)
}

func TestUpsertBringsOfflineDeviceBack(t *testing.T) {
	r := NewRegistry()

	_, _ = r.Upsert(reading("ESP32_001", 1000), 1000)
	_, ok := r.SetStatus("ESP32_001", model.StatusOffline)
	require.True(t, ok)

	d, changed := r.Upsert(reading("ESP32_001", 9000), 9000)
	assert.True(t, changed)
	assert.Equal(t, model.StatusOnline, d.Status)
}

func TestRegisterKeepsExistingFields(t *testing.T) {
	r := NewRegistry()

	d := r.Register("ESP32_001", "Classroom Sensor 1", model.StatusOffline, 1000)
	assert.Equal(t, "Classroom Sensor 1", d.Name)
	assert.Equal(t, model.StatusOffline, d.Status)

	// Empty fields keep current values
	d = r.Register("ESP32_001", "", "", 2000)
	assert.Equal(t, "Classroom Sensor 1", d.Name)
	assert.Equal(t, model.StatusOffline, d.Status)
	assert.Equal(t, int64(2000), d.LastSeen)
}

func TestRegisterDerivesNameWhenEmpty(t *testing.T) {
	r := NewRegistry()

	d := r.Register("ESP32_002", "", model.StatusOnline, 1000)
	assert.Equal(t, "ESP32-ESP32_002", d.Name)
}

func TestSetStatusUnknownDevice(t *testing.T) {
	r := NewRegistry()

	_, ok := r.SetStatus("nope", model.StatusOffline)
	assert.False(t, ok)
}

func TestListSortedByID(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Upsert(reading("c", 1), 1)
	_, _ = r.Upsert(reading("a", 1), 1)
	_, _ = r.Upsert(reading("b", 1), 1)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Upsert(reading("ESP32_001", 1), 1)

	assert.True(t, r.Remove("ESP32_001"))
	assert.False(t, r.Remove("ESP32_001"))

	_, ok := r.Get("ESP32_001")
	assert.False(t, ok)
}
