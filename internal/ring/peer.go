package ring

import "fmt"

// Peer is a triple sufficient to address a ring participant: its
// identifier and the host/port a caller can dial to reach it.
//
// Mirrors the teacher's cluster.Node{ID, Address}; IsAlive is dropped —
// in chordkv liveness is derived purely from heartbeat recency tracked
// on Overlay, not stored on the peer reference itself.
type Peer struct {
	ID   ID
	IP   string
	Port int
}

// NewPeer derives a Peer's ID by hashing its canonical "ip:port" string.
func NewPeer(ip string, port int) Peer {
	return Peer{ID: Hash(fmt.Sprintf("%s:%d", ip, port)), IP: ip, Port: port}
}

// Addr returns the canonical "ip:port" string this peer's ID was
// derived from.
func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}
