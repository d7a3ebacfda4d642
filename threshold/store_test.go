package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/model"
)

func TestGetFallsBackToDefaults(t *testing.T) {
	s := NewStore(Defaults{})

	th := s.Get("ESP32_001")
	assert.Equal(t, "ESP32_001", th.DeviceID)
	require.NotNil(t, th.TemperatureMax)
	assert.InDelta(t, 35.0, *th.TemperatureMax, 1e-9)
	assert.InDelta(t, 15.0, *th.TemperatureMin, 1e-9)
	assert.InDelta(t, 80.0, *th.HumidityMax, 1e-9)
	assert.InDelta(t, 30.0, *th.HumidityMin, 1e-9)
	assert.True(t, th.Enabled)
}

func TestCustomDefaults(t *testing.T) {
	s := NewStore(Defaults{
		TemperatureMax: 40, TemperatureMin: 10,
		HumidityMax: 90, HumidityMin: 20,
	})

	th := s.Get("any")
	assert.InDelta(t, 40.0, *th.TemperatureMax, 1e-9)
	assert.InDelta(t, 20.0, *th.HumidityMin, 1e-9)
}

func TestSetMergesPartialUpdate(t *testing.T) {
	s := NewStore(Defaults{})

	th, err := s.Set("ESP32_001", Update{TemperatureMax: model.Float(30)})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, *th.TemperatureMax, 1e-9)
	// untouched fields keep their defaults
	assert.InDelta(t, 15.0, *th.TemperatureMin, 1e-9)
	assert.True(t, th.Enabled)

	// A second partial update builds on the stored entry
	disabled := false
	th, err = s.Set("ESP32_001", Update{Enabled: &disabled})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, *th.TemperatureMax, 1e-9)
	assert.False(t, th.Enabled)
}

func TestSetRejectsInconsistentBounds(t *testing.T) {
	s := NewStore(Defaults{})

	_, err := s.Set("ESP32_001", Update{TemperatureMax: model.Float(30)})
	require.NoError(t, err)

	tests := []struct {
		name   string
		update Update
	}{
		{"temp max below min", Update{TemperatureMax: model.Float(10)}},
		{"temp max equals min", Update{TemperatureMax: model.Float(15)}},
		{"humidity min above max", Update{HumidityMin: model.Float(85)}},
		{"both inverted", Update{TemperatureMin: model.Float(32)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Set("ESP32_001", tt.update)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Msg)

			// failed update leaves the stored entry unchanged
			th := s.Get("ESP32_001")
			assert.InDelta(t, 30.0, *th.TemperatureMax, 1e-9)
			assert.InDelta(t, 15.0, *th.TemperatureMin, 1e-9)
		})
	}
}

func TestListReturnsOnlyCustomEntries(t *testing.T) {
	s := NewStore(Defaults{})

	assert.Empty(t, s.List())

	_, err := s.Set("b", Update{TemperatureMax: model.Float(32)})
	require.NoError(t, err)
	_, err = s.Set("a", Update{HumidityMin: model.Float(40)})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].DeviceID)
	assert.Equal(t, "b", list[1].DeviceID)
}

func TestResetWritesExplicitDefaultEntry(t *testing.T) {
	s := NewStore(Defaults{})

	_, err := s.Set("ESP32_001", Update{TemperatureMax: model.Float(30)})
	require.NoError(t, err)

	th := s.Reset("ESP32_001")
	assert.InDelta(t, 35.0, *th.TemperatureMax, 1e-9)

	// Reset keeps the device listed, unlike Remove
	assert.Len(t, s.List(), 1)
}

func TestRemoveRevertsToDefaults(t *testing.T) {
	s := NewStore(Defaults{})

	_, err := s.Set("ESP32_001", Update{TemperatureMax: model.Float(30)})
	require.NoError(t, err)

	assert.True(t, s.Remove("ESP32_001"))
	assert.False(t, s.Remove("ESP32_001"))

	th := s.Get("ESP32_001")
	assert.InDelta(t, 35.0, *th.TemperatureMax, 1e-9)
	assert.Empty(t, s.List())
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewStore(Defaults{})

	_, err := s.Set("ESP32_001", Update{TemperatureMax: model.Float(30)})
	require.NoError(t, err)

	th := s.Get("ESP32_001")
	*th.TemperatureMax = 999

	assert.InDelta(t, 30.0, *s.Get("ESP32_001").TemperatureMax, 1e-9)
}
