// Package threshold stores per-device alerting bounds with a process-wide
// default fallback.
package threshold

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iotlab/sensorhub/model"
)

// Defaults are the bounds applied to devices without a custom threshold.
type Defaults struct {
	TemperatureMax float64
	TemperatureMin float64
	HumidityMax    float64
	HumidityMin    float64
}

// DefaultBounds matches the dashboard's shipped defaults.
var DefaultBounds = Defaults{
	TemperatureMax: 35.0,
	TemperatureMin: 15.0,
	HumidityMax:    80.0,
	HumidityMin:    30.0,
}

// ValidationError reports a logically inconsistent threshold update.
// The attempted change is not retained.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Update is a partial threshold change. Nil fields keep their current value.
type Update struct {
	TemperatureMax *float64 `json:"temperatureMax"`
	TemperatureMin *float64 `json:"temperatureMin"`
	HumidityMax    *float64 `json:"humidityMax"`
	HumidityMin    *float64 `json:"humidityMin"`
	Enabled        *bool    `json:"enabled"`
}

// Store maps device identifiers to threshold rules.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]model.Threshold
	defaults Defaults
}

// NewStore creates a Store with the given default bounds.
// Zero-valued defaults fall back to DefaultBounds.
func NewStore(defaults Defaults) *Store {
	if defaults == (Defaults{}) {
		defaults = DefaultBounds
	}

	return &Store{
		entries:  make(map[string]model.Threshold),
		defaults: defaults,
	}
}

// Get returns the device's threshold, falling back to the defaults when no
// custom entry exists. It never fails.
func (s *Store) Get(deviceID string) model.Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.entries[deviceID]; ok {
		return clone(t)
	}

	return s.defaultFor(deviceID)
}

// List returns all custom threshold entries, sorted by device id.
// Devices running on defaults are not listed.
func (s *Store) List() []model.Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Threshold, 0, len(s.entries))
	for _, t := range s.entries {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })

	return out
}

// Set merges the update onto the device's current threshold (or the
// defaults) and stores the result. It returns a ValidationError when the
// merged bounds are inconsistent; the stored threshold is left unchanged.
func (s *Store) Set(deviceID string, u Update) (model.Threshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.entries[deviceID]
	if !ok {
		base = s.defaultFor(deviceID)
	}
	merged := merge(base, u)

	if err := validate(merged); err != nil {
		return model.Threshold{}, err
	}

	s.entries[deviceID] = merged

	return clone(merged), nil
}

// Reset writes an explicit entry carrying the default values. Unlike Remove
// it keeps the device listed with its own (default-valued) rule set.
func (s *Store) Reset(deviceID string) model.Threshold {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.defaultFor(deviceID)
	s.entries[deviceID] = t

	return clone(t)
}

// Remove deletes the custom entry, reverting Get to the defaults.
// It reports whether an entry existed.
func (s *Store) Remove(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[deviceID]
	delete(s.entries, deviceID)

	return ok
}

func (s *Store) defaultFor(deviceID string) model.Threshold {
	return model.Threshold{
		DeviceID:       deviceID,
		TemperatureMax: model.Float(s.defaults.TemperatureMax),
		TemperatureMin: model.Float(s.defaults.TemperatureMin),
		HumidityMax:    model.Float(s.defaults.HumidityMax),
		HumidityMin:    model.Float(s.defaults.HumidityMin),
		Enabled:        true,
	}
}

func merge(base model.Threshold, u Update) model.Threshold {
	out := clone(base)
	if u.TemperatureMax != nil {
		out.TemperatureMax = model.Float(*u.TemperatureMax)
	}
	if u.TemperatureMin != nil {
		out.TemperatureMin = model.Float(*u.TemperatureMin)
	}
	if u.HumidityMax != nil {
		out.HumidityMax = model.Float(*u.HumidityMax)
	}
	if u.HumidityMin != nil {
		out.HumidityMin = model.Float(*u.HumidityMin)
	}
	if u.Enabled != nil {
		out.Enabled = *u.Enabled
	}

	return out
}

// validate enforces max > min for each metric, only when both bounds are set.
func validate(t model.Threshold) error {
	if t.TemperatureMax != nil && t.TemperatureMin != nil && *t.TemperatureMax <= *t.TemperatureMin {
		return &ValidationError{Msg: fmt.Sprintf(
			"temperature max (%g) must be greater than min (%g)", *t.TemperatureMax, *t.TemperatureMin)}
	}
	if t.HumidityMax != nil && t.HumidityMin != nil && *t.HumidityMax <= *t.HumidityMin {
		return &ValidationError{Msg: fmt.Sprintf(
			"humidity max (%g) must be greater than min (%g)", *t.HumidityMax, *t.HumidityMin)}
	}

	return nil
}

// clone deep-copies the optional bound pointers so callers cannot mutate
// stored entries.
func clone(t model.Threshold) model.Threshold {
	out := t
	if t.TemperatureMax != nil {
		out.TemperatureMax = model.Float(*t.TemperatureMax)
	}
	if t.TemperatureMin != nil {
		out.TemperatureMin = model.Float(*t.TemperatureMin)
	}
	if t.HumidityMax != nil {
		out.HumidityMax = model.Float(*t.HumidityMax)
	}
	if t.HumidityMin != nil {
		out.HumidityMin = model.Float(*t.HumidityMin)
	}

	return out
}
