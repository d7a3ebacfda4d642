package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Monitor periodically sweeps the device registry and flips silent devices
// offline. It never transitions a device to online; only telemetry
// ingestion does that.
type Monitor struct {
	engine   *Engine
	interval time.Duration

	started  atomic.Bool
	sweeping atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a Monitor sweeping at the engine's configured interval.
func NewMonitor(e *Engine) *Monitor {
	return &Monitor{
		engine:   e,
		interval: e.cfg.SweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine. Call Stop to end it.
// Starting twice is a no-op.
func (m *Monitor) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one sweep. The guard makes overlapping ticks a no-op, so a slow
// sweep is skipped rather than stacked.
func (m *Monitor) Tick() {
	if !m.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer m.sweeping.Store(false)

	m.engine.sweepOffline(m.engine.clock.Now().UnixMilli())
}

// Stop ends the sweep loop and waits for the in-flight tick, if any, to
// complete. Safe to call more than once, or without a prior Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}
