// Package simulator runs a fleet of mock ESP32 devices against the engine,
// for development without a broker or real hardware.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

// DefaultInterval is the emission period of the mock fleet.
const DefaultInterval = 2 * time.Second

// Random walk step sizes and clamping ranges, matching the classroom
// firmware's plausible envelope.
const (
	tempStep = 2.0 // ±1°C per tick
	humStep  = 4.0 // ±2% per tick

	tempMin, tempMax = 15.0, 35.0
	humMin, humMax   = 30.0, 90.0
)

// mockDevice is the mutable state of one simulated sensor.
type mockDevice struct {
	id          string
	name        string
	temperature float64
	humidity    float64
	led         bool
}

func defaultFleet() []*mockDevice {
	return []*mockDevice{
		{id: "ESP32_001", name: "Classroom Sensor 1", temperature: 25, humidity: 60, led: false},
		{id: "ESP32_002", name: "Classroom Sensor 2", temperature: 23, humidity: 55, led: false},
		{id: "ESP32_003", name: "Classroom Sensor 3", temperature: 27, humidity: 65, led: true},
	}
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(c engine.Clock) Option {
	return func(f *Fleet) { f.clock = c }
}

// WithRand overrides the random source, for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(f *Fleet) { f.rng = r }
}

// WithInterval overrides the emission period.
func WithInterval(d time.Duration) Option {
	return func(f *Fleet) {
		if d > 0 {
			f.interval = d
		}
	}
}

// Fleet simulates mock devices feeding the engine like any other transport.
// It implements engine.CommandSender so LED control round-trips work without
// a broker.
type Fleet struct {
	eng      *engine.Engine
	interval time.Duration
	clock    engine.Clock
	rng      *rand.Rand

	mu      sync.Mutex // guards devices and rng
	devices []*mockDevice

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewFleet creates a Fleet with the standard three classroom sensors.
func NewFleet(eng *engine.Engine, opts ...Option) *Fleet {
	f := &Fleet{
		eng:      eng,
		interval: DefaultInterval,
		clock:    engine.SystemClock(),
		devices:  defaultFleet(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return f
}

// DeviceIDs returns the ids of the simulated devices.
func (f *Fleet) DeviceIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, len(f.devices))
	for i, d := range f.devices {
		ids[i] = d.id
	}

	return ids
}

// Start seeds the registry with the fleet and launches the emission loop.
// Starting twice is a no-op.
func (f *Fleet) Start() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}

	f.mu.Lock()
	for _, d := range f.devices {
		f.eng.UpsertDevice(d.id, d.name, model.StatusOnline)
	}
	f.mu.Unlock()

	f.Tick()
	go f.run()
}

func (f *Fleet) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.Tick()
		}
	}
}

// Tick advances every device one random-walk step and emits its reading.
func (f *Fleet) Tick() {
	f.mu.Lock()
	readings := make([]model.TelemetryReading, 0, len(f.devices))
	now := f.clock.Now().UnixMilli()
	for _, d := range f.devices {
		d.temperature = clamp(d.temperature+(f.rng.Float64()-0.5)*tempStep, tempMin, tempMax)
		d.humidity = clamp(d.humidity+(f.rng.Float64()-0.5)*humStep, humMin, humMax)
		readings = append(readings, d.reading(now))
	}
	f.mu.Unlock()

	for _, r := range readings {
		f.eng.IngestTelemetry(r)
	}
}

// Stop ends the emission loop. Safe to call more than once, or without a
// prior Start.
func (f *Fleet) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
	if f.started.Load() {
		<-f.done
	}
}

// SendCommand implements engine.CommandSender. The mock device applies the
// LED change, acknowledges it, and reports fresh telemetry immediately.
func (f *Fleet) SendCommand(_ context.Context, deviceID string, cmd model.ControlCommand) error {
	f.mu.Lock()
	var dev *mockDevice
	for _, d := range f.devices {
		if d.id == deviceID {
			dev = d
			break
		}
	}
	if dev == nil {
		f.mu.Unlock()
		return fmt.Errorf("simulator: unknown device %s", deviceID)
	}

	switch cmd.Command {
	case model.CommandLEDOn:
		dev.led = true
	case model.CommandLEDOff:
		dev.led = false
	case model.CommandLEDToggle:
		dev.led = !dev.led
	default:
		f.mu.Unlock()
		return fmt.Errorf("simulator: unknown command %s", cmd.Command)
	}

	now := f.clock.Now().UnixMilli()
	reading := dev.reading(now)
	f.mu.Unlock()

	f.eng.HandleAck(deviceID, model.AckResponse{
		Command: string(cmd.Command),
		Success: true,
		TS:      now,
		Message: fmt.Sprintf("Command %s executed successfully", cmd.Command),
	})
	f.eng.IngestTelemetry(reading)

	return nil
}

func (d *mockDevice) reading(now int64) model.TelemetryReading {
	return model.TelemetryReading{
		DeviceID:    d.id,
		TS:          now,
		Temperature: round1(d.temperature),
		Humidity:    round1(d.humidity),
		LED:         d.led,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
