// Package engine composes the device registry, telemetry buffer, threshold
// store and alert store into the real-time state engine.
//
// The engine exclusively owns the four stores: transport adapters and the
// HTTP layer hold no state of their own and mutate only through the engine's
// methods. Telemetry ingestion for different devices proceeds in parallel;
// ingestion for the same device is serialized so a reader never observes a
// registry update without the corresponding history append.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/iotlab/sensorhub/alert"
	"github.com/iotlab/sensorhub/device"
	"github.com/iotlab/sensorhub/model"
	"github.com/iotlab/sensorhub/telemetry"
	"github.com/iotlab/sensorhub/threshold"
)

// ErrNoCommandSender is returned by SendCommand when no transport has
// registered a command path.
var ErrNoCommandSender = errors.New("engine: no command sender registered")

// Config carries the engine's tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	// BufferCapacity bounds per-device history. Default 500.
	BufferCapacity int

	// OfflineTimeout is the silence window after which a device is marked
	// offline. Default 5s.
	OfflineTimeout time.Duration

	// AlertCooldown is the dedup window for repeat alerts. Default 60s.
	AlertCooldown time.Duration

	// SweepInterval is the liveness monitor tick period. Default 1s.
	SweepInterval time.Duration

	// Thresholds are the process-wide default bounds.
	Thresholds threshold.Defaults
}

func (c Config) withDefaults() Config {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = telemetry.DefaultCapacity
	}
	if c.OfflineTimeout <= 0 {
		c.OfflineTimeout = 5 * time.Second
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = alert.DefaultCooldown
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}

	return c
}

// Events receives engine notifications. Implementations must not block;
// the WebSocket hub hands messages off to buffered channels.
type Events interface {
	TelemetryReceived(r model.TelemetryReading)
	DeviceStatusChanged(d model.Device)
	AlertRaised(a model.Alert)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) TelemetryReceived(model.TelemetryReading) {}
func (NopEvents) DeviceStatusChanged(model.Device)         {}
func (NopEvents) AlertRaised(model.Alert)                  {}

// CommandSender delivers a control command to a device over some transport.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceID string, cmd model.ControlCommand) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEvents installs a notification sink.
func WithEvents(ev Events) Option {
	return func(e *Engine) { e.events = ev }
}

// SetEvents replaces the notification sink. Passing nil restores the no-op
// sink. Used when the sink (the WebSocket hub) is built after the engine.
func (e *Engine) SetEvents(ev Events) {
	if ev == nil {
		ev = NopEvents{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = ev
}

// sink returns the current notification sink.
func (e *Engine) sink() Events {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.events
}

// WithMeterProvider overrides the global OTel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// Engine is the composition root owning all device state.
type Engine struct {
	cfg    Config
	clock  Clock
	events Events

	devices    *device.Registry
	history    *telemetry.Buffer
	thresholds *threshold.Store
	alerts     *alert.Store

	mu     sync.Mutex // guards locks and sender
	locks  map[string]*sync.Mutex
	sender CommandSender

	meterProvider    metric.MeterProvider
	readingsIngested metric.Int64Counter
	alertsRaised     metric.Int64Counter
	alertsSuppressed metric.Int64Counter
	devicesOffline   metric.Int64Counter
}

// New creates an Engine with its four stores. Multiple isolated engines can
// coexist in one process; nothing is ambient.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:        cfg,
		clock:      SystemClock(),
		events:     NopEvents{},
		devices:    device.NewRegistry(),
		history:    telemetry.NewBuffer(cfg.BufferCapacity),
		thresholds: threshold.NewStore(cfg.Thresholds),
		alerts:     alert.NewStore(cfg.AlertCooldown),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initMetrics()

	return e
}

// initMetrics registers counters against the configured (or global) meter
// provider. The global default is a no-op provider, so an engine without
// observability wiring costs nothing here.
func (e *Engine) initMetrics() {
	mp := e.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("sensorhub/engine")

	e.readingsIngested, _ = meter.Int64Counter("sensorhub.readings.ingested")
	e.alertsRaised, _ = meter.Int64Counter("sensorhub.alerts.raised")
	e.alertsSuppressed, _ = meter.Int64Counter("sensorhub.alerts.suppressed")
	e.devicesOffline, _ = meter.Int64Counter("sensorhub.devices.offline")
}

// deviceLock returns the per-device ingestion mutex, creating it on first
// contact.
func (e *Engine) deviceLock(deviceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[deviceID] = l
	}

	return l
}

// IngestTelemetry applies a reading: registry upsert, history append,
// threshold evaluation and alert raise, atomically with respect to other
// ingestion for the same device. Presence of data implies online,
// immediately.
func (e *Engine) IngestTelemetry(r model.TelemetryReading) {
	l := e.deviceLock(r.DeviceID)
	l.Lock()
	defer l.Unlock()

	ctx := context.Background()
	now := e.clock.Now().UnixMilli()

	d, statusChanged := e.devices.Upsert(r, now)
	e.history.Append(r.DeviceID, r.Point())

	sink := e.sink()
	th := e.thresholds.Get(r.DeviceID)
	for _, a := range alert.Evaluate(r, th) {
		if e.alerts.Raise(a) {
			e.alertsRaised.Add(ctx, 1)
			sink.AlertRaised(a)
		} else {
			e.alertsSuppressed.Add(ctx, 1)
		}
	}

	e.readingsIngested.Add(ctx, 1)
	sink.TelemetryReceived(r)
	if statusChanged {
		sink.DeviceStatusChanged(d)
	}
}

// HandleAck records a device's acknowledgment of a control command.
// Unknown commands are logged and dropped; a bad ack never corrupts state.
func (e *Engine) HandleAck(deviceID string, ack model.AckResponse) {
	if ack.Success {
		log.Printf("ack from %s: %s ok", deviceID, ack.Command)
	} else {
		log.Printf("ack from %s: %s failed: %s", deviceID, ack.Command, ack.Message)
	}
}

// RegisterCommandSender installs the transport used for outbound control
// commands. The last registration wins.
func (e *Engine) RegisterCommandSender(s CommandSender) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sender = s
}

// SendCommand builds a control command and routes it to the registered
// sender. For LED_TOGGLE the value is derived from the device's last
// reported LED state.
func (e *Engine) SendCommand(ctx context.Context, deviceID string, cmd model.Command) (model.ControlCommand, error) {
	e.mu.Lock()
	sender := e.sender
	e.mu.Unlock()

	if sender == nil {
		return model.ControlCommand{}, ErrNoCommandSender
	}

	value := false
	switch cmd {
	case model.CommandLEDOn:
		value = true
	case model.CommandLEDToggle:
		if d, ok := e.devices.Get(deviceID); ok && d.CurrentData != nil {
			value = !d.CurrentData.LED
		} else {
			value = true
		}
	}

	cc := model.ControlCommand{
		Command: cmd,
		Value:   value,
		TS:      e.clock.Now().UnixMilli(),
	}
	if err := sender.SendCommand(ctx, deviceID, cc); err != nil {
		return model.ControlCommand{}, err
	}

	return cc, nil
}

// sweepOffline flips silent devices offline. Level-triggered: devices
// already offline are left alone, and the monitor never flips a device
// online.
func (e *Engine) sweepOffline(now int64) {
	timeout := e.cfg.OfflineTimeout.Milliseconds()
	for _, d := range e.devices.List() {
		if d.Status != model.StatusOnline {
			continue
		}
		if now-d.LastSeen <= timeout {
			continue
		}
		updated, ok := e.devices.SetStatus(d.ID, model.StatusOffline)
		if !ok {
			continue
		}
		e.devicesOffline.Add(context.Background(), 1)
		e.sink().DeviceStatusChanged(updated)
		log.Printf("device %s went offline (%dms since last seen)", d.ID, now-d.LastSeen)
	}
}

// ---------------------------------------------------------------------------
// Query surface for the HTTP layer
// ---------------------------------------------------------------------------

// ListDevices returns all devices sorted by id.
func (e *Engine) ListDevices() []model.Device { return e.devices.List() }

// GetDevice returns the device or ErrNotFound.
func (e *Engine) GetDevice(id string) (model.Device, error) {
	d, ok := e.devices.Get(id)
	if !ok {
		return model.Device{}, device.ErrNotFound
	}

	return d, nil
}

// UpsertDevice creates or updates a device through the administrative API.
func (e *Engine) UpsertDevice(id, name string, status model.DeviceStatus) model.Device {
	return e.devices.Register(id, name, status, e.clock.Now().UnixMilli())
}

// RemoveDevice deletes a device and its buffered history.
func (e *Engine) RemoveDevice(id string) error {
	if !e.devices.Remove(id) {
		return device.ErrNotFound
	}
	e.history.Clear(id)

	return nil
}

// History returns the most recent limit points for a device in
// chronological order.
func (e *Engine) History(deviceID string, limit int) []model.DataPoint {
	return e.history.Read(deviceID, limit)
}

// HistoryDevices returns the ids of devices with buffered history.
func (e *Engine) HistoryDevices() []string { return e.history.Devices() }

// AppendHistory adds a data point directly, bypassing evaluation. Used by
// the administrative append endpoint.
func (e *Engine) AppendHistory(deviceID string, p model.DataPoint) {
	e.history.Append(deviceID, p)
}

// GetThreshold resolves the device's threshold, falling back to defaults.
func (e *Engine) GetThreshold(deviceID string) model.Threshold {
	return e.thresholds.Get(deviceID)
}

// ListThresholds returns all custom threshold entries.
func (e *Engine) ListThresholds() []model.Threshold { return e.thresholds.List() }

// SetThreshold merges a partial update; a ValidationError leaves the stored
// threshold unchanged.
func (e *Engine) SetThreshold(deviceID string, u threshold.Update) (model.Threshold, error) {
	return e.thresholds.Set(deviceID, u)
}

// ResetThreshold restores the default values for the device.
func (e *Engine) ResetThreshold(deviceID string) model.Threshold {
	return e.thresholds.Reset(deviceID)
}

// RemoveThreshold deletes the custom entry entirely.
func (e *Engine) RemoveThreshold(deviceID string) bool {
	return e.thresholds.Remove(deviceID)
}

// ListAlerts returns alerts matching the filter, newest first.
func (e *Engine) ListAlerts(f alert.Filter) []model.Alert { return e.alerts.List(f) }

// UnacknowledgedAlerts returns all unacknowledged alerts, newest first.
func (e *Engine) UnacknowledgedAlerts() []model.Alert { return e.alerts.Unacknowledged() }

// GetAlert returns the alert or ErrNotFound.
func (e *Engine) GetAlert(id string) (model.Alert, error) {
	a, ok := e.alerts.Get(id)
	if !ok {
		return model.Alert{}, alert.ErrNotFound
	}

	return a, nil
}

// AddAlert inserts an alert unconditionally (administrative create).
func (e *Engine) AddAlert(a model.Alert) { e.alerts.Add(a) }

// AcknowledgeAlert marks an alert acknowledged; idempotent, and a silent
// no-op on unknown ids.
func (e *Engine) AcknowledgeAlert(id string) (model.Alert, bool) {
	return e.alerts.Acknowledge(id)
}

// ClearAlert removes an alert; ErrNotFound on unknown ids.
func (e *Engine) ClearAlert(id string) error {
	return e.alerts.Clear(id)
}
