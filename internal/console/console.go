// Package console is the Operator Console: the four local operations
// (Status, Put, Get, Quit) spec.md §6 specifies against a running
// peer's in-process components, with no network hop for anything the
// local peer can already answer.
//
// Grounded on the teacher's cmd/client commands talking to
// internal/client over HTTP; here there is no HTTP hop at all — Status
// reads internal/ring and internal/store directly, and Put/Get reuse
// the same overlay-ownership test the Dispatcher uses before deciding
// whether to act locally or forward (DESIGN.md).
package console

import (
	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/wire"
)

// Console implements the four operator operations. It is also a
// dispatch.ResultSink: asynchronous RESULTs for a GET this console
// forwarded arrive here and are printed when they land.
type Console struct {
	overlay *ring.Overlay
	store   *store.Store
	send    func(ip string, port int, msg wire.Message) error
	out     func(format string, args ...any)
}

// New creates a Console. out receives every line the console prints —
// production wiring passes a thin fmt.Printf wrapper; tests can
// capture it.
func New(overlay *ring.Overlay, s *store.Store, send func(ip string, port int, msg wire.Message) error, out func(format string, args ...any)) *Console {
	return &Console{overlay: overlay, store: s, send: send, out: out}
}

// Status implements menu option 1: self ID, successor, predecessor (or
// "None"), and the full local snapshot.
func (c *Console) Status() {
	self := c.overlay.Self()
	successor := c.overlay.Successor()

	predStr := "None"
	if pred := c.overlay.Predecessor(); pred != nil {
		predStr = pred.Addr()
	}

	c.out("self: %s (%s)\n", self.ID, self.Addr())
	c.out("successor: %s\n", successor.Addr())
	c.out("predecessor: %s\n", predStr)

	snapshot := c.store.Snapshot()
	c.out("store (%d keys):\n", len(snapshot))
	for k, v := range snapshot {
		c.out("  %s = %s\n", k, v)
	}
}

// Put implements menu option 2: store locally and replicate if this
// peer is responsible for key, otherwise forward on as a non-replica
// PUT to the successor (spec.md §6).
func (c *Console) Put(key, value string) {
	self := c.overlay.Self()

	if c.overlay.IsResponsible(ring.Hash(key)) {
		c.store.Put(key, value)
		successor := c.overlay.Successor()
		if successor.ID == self.ID {
			return
		}
		replica := wire.NewPut(self.ID.Decimal(), key, value, true)
		if err := c.send(successor.IP, successor.Port, replica); err != nil {
			c.out("warning: replication to %s failed: %v\n", successor.Addr(), err)
		}
		return
	}

	successor := c.overlay.Successor()
	forward := wire.NewPut(self.ID.Decimal(), key, value, false)
	if err := c.send(successor.IP, successor.Port, forward); err != nil {
		c.out("error: forwarding PUT to %s failed: %v\n", successor.Addr(), err)
	}
}

// Get implements menu option 3: print immediately on a local hit,
// otherwise send a GET to the successor naming this peer as requester
// and return — the eventual RESULT arrives asynchronously via Deliver.
func (c *Console) Get(key string) {
	if v, ok := c.store.Get(key); ok {
		c.out("%s = %s\n", key, v)
		return
	}

	self := c.overlay.Self()
	successor := c.overlay.Successor()
	if successor.ID == self.ID {
		c.out("%s not found\n", key)
		return
	}

	msg := wire.NewGet(self.ID.Decimal(), key, self.IP, self.Port)
	if err := c.send(successor.IP, successor.Port, msg); err != nil {
		c.out("error: GET forwarding to %s failed: %v\n", successor.Addr(), err)
		return
	}
	c.out("requested %q, awaiting result...\n", key)
}

// Deliver implements dispatch.ResultSink: prints an asynchronous
// RESULT as it arrives.
func (c *Console) Deliver(key, value string) {
	c.out("%s = %s (async)\n", key, value)
}
