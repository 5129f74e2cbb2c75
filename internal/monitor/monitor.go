// Package monitor records a trailing window of engine state and serves the
// operator debug dashboard: live charts of the drowsiness score and its
// components, a rendered score-history PNG, and the recent alert log.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/fusion"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

const (
	// maxSamples bounds the retained score history. At one snapshot per
	// engine publish this covers well over an hour of driving.
	maxSamples = 4096

	// maxAlerts bounds the retained alert log.
	maxAlerts = 64
)

// Sample is one recorded point of published engine state.
type Sample struct {
	At      time.Time
	Score   float64
	Perclos float64
	EAR     float64
	MAR     float64
	Drowsy  bool
}

// Monitor consumes the engine event stream and retains bounded history for
// the debug endpoints. Safe for concurrent use.
type Monitor struct {
	eng   *engine.Engine
	clock timeutil.Clock

	mu      sync.Mutex
	samples []Sample
	alerts  []engine.AlertEvent
}

// New creates a monitor over eng. A nil clock means the real clock.
func New(eng *engine.Engine, clk timeutil.Clock) *Monitor {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	return &Monitor{eng: eng, clock: clk}
}

// Run subscribes to the engine and records events until ctx ends or the
// engine closes the subscription.
func (m *Monitor) Run(ctx context.Context) error {
	id, events := m.eng.Subscribe()
	defer m.eng.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.observe(ev, m.clock.Now())
		}
	}
}

func (m *Monitor) observe(ev engine.Event, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Type {
	case engine.EventSnapshot:
		if ev.Snapshot == nil {
			return
		}
		m.samples = append(m.samples, Sample{
			At:      at,
			Score:   ev.Snapshot.DrowsyScore,
			Perclos: ev.Snapshot.Perclos,
			EAR:     ev.Snapshot.EAR,
			MAR:     ev.Snapshot.MAR,
			Drowsy:  ev.Snapshot.Status == string(fusion.StatusDrowsy),
		})
		if len(m.samples) > maxSamples {
			m.samples = m.samples[len(m.samples)-maxSamples:]
		}
	case engine.EventAlert:
		if ev.Alert == nil {
			return
		}
		m.alerts = append(m.alerts, *ev.Alert)
		if len(m.alerts) > maxAlerts {
			m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
		}
	}
}

// Samples returns a copy of the retained score history, oldest first.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Alerts returns a copy of the retained alert log, oldest first.
func (m *Monitor) Alerts() []engine.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.AlertEvent, len(m.alerts))
	copy(out, m.alerts)
	return out
}
