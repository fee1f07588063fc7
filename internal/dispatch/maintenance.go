package dispatch

import (
	"log"
	"time"

	"chordkv/internal/wire"
)

// DefaultHeartbeatInterval is T_hb: how often the Maintenance Loop
// pings the successor (spec.md §4.7).
const DefaultHeartbeatInterval = 5 * time.Second

// DefaultPredecessorTimeout is T_timeout: how long a predecessor may
// stay silent before it is declared dead (spec.md §4.7).
const DefaultPredecessorTimeout = 15 * time.Second

// Maintenance runs the Maintenance Loop: on every tick it heartbeats
// the successor and ages out a silent predecessor. Grounded on the
// teacher's background snapshot ticker in cmd/server/main.go
// (time.NewTicker driving a fixed-interval goroutine) and on the
// original Python's tareas_mantenimiento loop, generalized from a
// single sleep-loop to a time.Ticker (DESIGN.md).
type Maintenance struct {
	d                  *Dispatcher
	heartbeatInterval  time.Duration
	predecessorTimeout time.Duration
}

// NewMaintenance creates a Maintenance loop driving d. A zero interval
// or timeout falls back to the package defaults.
func NewMaintenance(d *Dispatcher, heartbeatInterval, predecessorTimeout time.Duration) *Maintenance {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if predecessorTimeout <= 0 {
		predecessorTimeout = DefaultPredecessorTimeout
	}
	return &Maintenance{d: d, heartbeatInterval: heartbeatInterval, predecessorTimeout: predecessorTimeout}
}

// Run ticks until stop is closed. Intended to be started with `go
// m.Run(stop)` from cmd/peer's main.
func (m *Maintenance) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick performs one maintenance pass: heartbeat the successor, and
// drop a predecessor that has gone silent past the timeout
// (spec.md §4.7).
func (m *Maintenance) tick() {
	d := m.d
	self := d.overlay.Self()
	successor := d.overlay.Successor()

	if successor.ID != self.ID {
		hb := wire.NewHeartbeat(self.ID.Decimal(), self.IP, self.Port)
		if err := d.send(successor.IP, successor.Port, hb); err != nil {
			log.Printf("maintenance: successor %s unreachable, collapsing ring: %v", successor.Addr(), err)
			d.overlay.HandleSuccessorFailure()
		}
	}

	if d.overlay.PredecessorSilentFor(m.predecessorTimeout) {
		pred := d.overlay.Predecessor()
		if pred != nil {
			log.Printf("maintenance: predecessor %s silent past %s, dropping", pred.Addr(), m.predecessorTimeout)
		}
		d.overlay.ClearPredecessor()
	}
}
