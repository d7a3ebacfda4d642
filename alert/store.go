package alert

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iotlab/sensorhub/model"
)

// DefaultCooldown is the window during which a repeat alert of the same
// device and type is suppressed.
const DefaultCooldown = 60 * time.Second

// ErrNotFound is returned when an alert id is unknown and absence matters.
var ErrNotFound = errors.New("alert not found")

// Filter selects alerts in List. Zero-valued fields match everything.
type Filter struct {
	DeviceID     string
	Type         model.AlertType
	Acknowledged *bool
}

// Store holds raised alerts and suppresses duplicate occurrences within the
// cooldown window. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	alerts   map[string]model.Alert
	cooldown time.Duration
}

// NewStore creates a Store with the given dedup cooldown.
// Non-positive cooldowns fall back to DefaultCooldown.
func NewStore(cooldown time.Duration) *Store {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	return &Store{
		alerts:   make(map[string]model.Alert),
		cooldown: cooldown,
	}
}

// Raise stores the alert unless an unacknowledged alert with the same device
// and type already exists within the cooldown window, measured against alert
// timestamps. It reports whether the alert was newly stored; suppression is
// a successful no-op, not an error.
func (s *Store) Raise(a model.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.cooldown.Milliseconds()
	for _, existing := range s.alerts {
		if existing.Acknowledged {
			continue
		}
		if existing.DeviceID != a.DeviceID || existing.Type != a.Type {
			continue
		}
		if abs(existing.Timestamp-a.Timestamp) < window {
			return false
		}
	}

	s.alerts[a.ID] = a

	return true
}

// Add inserts an alert unconditionally, bypassing deduplication.
// Used by the administrative create endpoint.
func (s *Store) Add(a model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[a.ID] = a
}

// Acknowledge marks the alert acknowledged. Acknowledging twice, or an
// unknown id, is a silent no-op; ok reports whether the alert exists.
func (s *Store) Acknowledge(id string) (model.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, false
	}
	a.Acknowledged = true
	s.alerts[id] = a

	return a, true
}

// Clear removes the alert entirely. Unlike Acknowledge it fails with
// ErrNotFound on an unknown id.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return ErrNotFound
	}
	delete(s.alerts, id)

	return nil
}

// Get returns the alert by id.
func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]

	return a, ok
}

// List returns alerts matching the filter, newest first.
func (s *Store) List(f Filter) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if f.DeviceID != "" && a.DeviceID != f.DeviceID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })

	return out
}

// Unacknowledged returns all unacknowledged alerts, newest first.
func (s *Store) Unacknowledged() []model.Alert {
	ack := false

	return s.List(Filter{Acknowledged: &ack})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}
