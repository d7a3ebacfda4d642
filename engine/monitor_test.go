package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/model"
)

func TestMonitorTick(t *testing.T) {
	clock := &fakeClock{ms: 1_000_000}
	e := New(Config{OfflineTimeout: 5 * time.Second}, WithClock(clock))
	m := NewMonitor(e)

	e.IngestTelemetry(reading("ESP32_001", 1000, 25, 60))

	clock.Advance(6 * time.Second)
	m.Tick()

	d, err := e.GetDevice("ESP32_001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, d.Status)
}

func TestMonitorStartStop(t *testing.T) {
	clock := &fakeClock{ms: 1_000_000}
	e := New(Config{
		OfflineTimeout: 50 * time.Millisecond,
		SweepInterval:  10 * time.Millisecond,
	}, WithClock(clock))
	m := NewMonitor(e)

	e.IngestTelemetry(reading("ESP32_001", 1000, 25, 60))

	m.Start()
	m.Start() // second start is a no-op

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		d, err := e.GetDevice("ESP32_001")
		return err == nil && d.Status == model.StatusOffline
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop() // idempotent
}

func TestMonitorStopWithoutStart(t *testing.T) {
	e := New(Config{})
	m := NewMonitor(e)
	m.Stop() // must not block
}
