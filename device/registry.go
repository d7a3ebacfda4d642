// Package device tracks last-known state and liveness of registered devices.
package device

import (
	"errors"
	"sort"
	"sync"

	"github.com/iotlab/sensorhub/model"
)

// ErrNotFound is returned when a device id is unknown.
var ErrNotFound = errors.New("device not found")

// Registry maps device identifiers to their last-known state.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]model.Device
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]model.Device)}
}

// Upsert applies a telemetry reading: it creates the device on first contact
// (with a derived display name), marks it online, and refreshes lastSeen and
// the current reading. It reports whether the online status changed, so the
// caller can emit a status notification.
func (r *Registry) Upsert(reading model.TelemetryReading, now int64) (model.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[reading.DeviceID]
	if !ok {
		d = model.Device{
			ID:   reading.DeviceID,
			Name: deriveName(reading.DeviceID),
		}
	}

	changed := d.Status != model.StatusOnline
	data := reading
	d.Status = model.StatusOnline
	d.LastSeen = now
	d.CurrentData = &data
	r.devices[d.ID] = d

	return d, changed
}

// Register creates or updates a device through the administrative API.
// Empty fields keep their current (or derived) values.
func (r *Registry) Register(id, name string, status model.DeviceStatus, now int64) model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		d = model.Device{ID: id, Name: deriveName(id), Status: model.StatusOffline}
	}
	if name != "" {
		d.Name = name
	}
	if status != "" {
		d.Status = status
	}
	d.LastSeen = now
	r.devices[id] = d

	return d
}

// SetStatus overrides the device's liveness state. It is reserved for the
// liveness monitor and explicit administrative calls; telemetry ingestion is
// the only path that flips a device online.
func (r *Registry) SetStatus(id string, status model.DeviceStatus) (model.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return model.Device{}, false
	}
	d.Status = status
	r.devices[id] = d

	return d, true
}

// Get returns the device's last-known state.
func (r *Registry) Get(id string) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]

	return d, ok
}

// List returns all devices sorted by id.
func (r *Registry) List() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Remove deletes a device. It reports whether the device existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.devices[id]
	delete(r.devices, id)

	return ok
}

// deriveName builds a display name for devices first seen via telemetry.
func deriveName(id string) string {
	return "ESP32-" + id
}
