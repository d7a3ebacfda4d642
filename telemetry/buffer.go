// Package telemetry keeps bounded per-device history of recent data points.
package telemetry

import (
	"sort"
	"sync"

	"github.com/iotlab/sensorhub/model"
)

// DefaultCapacity matches the dashboard's rolling chart window.
const DefaultCapacity = 500

// Buffer holds a fixed-capacity ring of data points per device, oldest
// evicted first. Capacities are independent per device.
//
// Points are kept in insertion order. The buffer trusts that arrival order
// matches chronological order; it does not re-sort on insert.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	points   map[string][]model.DataPoint
}

// NewBuffer creates a Buffer with the given per-device capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{
		capacity: capacity,
		points:   make(map[string][]model.DataPoint),
	}
}

// Capacity returns the per-device bound.
func (b *Buffer) Capacity() int { return b.capacity }

// Append pushes a data point onto the device's ring, evicting the oldest
// point once the capacity is reached.
func (b *Buffer) Append(deviceID string, p model.DataPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.points[deviceID]
	if len(buf) >= b.capacity {
		copy(buf, buf[1:])
		buf[len(buf)-1] = p
	} else {
		buf = append(buf, p)
	}
	b.points[deviceID] = buf
}

// Read returns the most recent limit points for the device in chronological
// order. A non-positive limit returns all buffered points.
func (b *Buffer) Read(deviceID string, limit int) []model.DataPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buf := b.points[deviceID]
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}

	out := make([]model.DataPoint, limit)
	copy(out, buf[len(buf)-limit:])

	return out
}

// Len returns the number of points buffered for the device.
func (b *Buffer) Len(deviceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.points[deviceID])
}

// Devices returns the ids of all devices with buffered history, sorted.
func (b *Buffer) Devices() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.points))
	for id := range b.points {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

// Clear empties a device's buffer without affecting other devices.
func (b *Buffer) Clear(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.points, deviceID)
}
