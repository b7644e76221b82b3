package client

import "sync/atomic"

// Metrics counts client activity. All methods are safe for concurrent use
// and a nil *Metrics ignores every update.
type Metrics struct {
	eventsApplied   atomic.Uint64
	eventsMalformed atomic.Uint64
	steersSent      atomic.Uint64
	steersDeduped   atomic.Uint64
	joins           atomic.Uint64
	joinTimeouts    atomic.Uint64
	deaths          atomic.Uint64
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) applied() {
	if m != nil {
		m.eventsApplied.Add(1)
	}
}

func (m *Metrics) malformed() {
	if m != nil {
		m.eventsMalformed.Add(1)
	}
}

func (m *Metrics) steered() {
	if m != nil {
		m.steersSent.Add(1)
	}
}

func (m *Metrics) deduped() {
	if m != nil {
		m.steersDeduped.Add(1)
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.joins.Add(1)
	}
}

func (m *Metrics) joinTimedOut() {
	if m != nil {
		m.joinTimeouts.Add(1)
	}
}

func (m *Metrics) died() {
	if m != nil {
		m.deaths.Add(1)
	}
}

// Snapshot returns the current counter values keyed by name.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	return map[string]uint64{
		"events_applied":   m.eventsApplied.Load(),
		"events_malformed": m.eventsMalformed.Load(),
		"steers_sent":      m.steersSent.Load(),
		"steers_deduped":   m.steersDeduped.Load(),
		"joins":            m.joins.Load(),
		"join_timeouts":    m.joinTimeouts.Load(),
		"deaths":           m.deaths.Load(),
	}
}
