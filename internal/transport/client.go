package transport

import (
	"fmt"
	"net"
	"time"

	"chordkv/internal/wire"
)

// dialTimeout bounds both the dial and the subsequent write — a single
// unreachable peer must never stall the sender beyond this (spec.md
// §4.4/§5). Grounded on the teacher's Replicator using
// context.WithTimeout(3*time.Second) per-call in doHTTPReplicate.
const dialTimeout = 3 * time.Second

// Send opens a short-lived connection to ip:port, writes the encoded
// message, and closes — fire-and-forget, with no response channel.
// Replies, if any, arrive later as a fresh inbound connection to this
// peer's own server (spec.md §4.4/§9).
func Send(ip string, port int, msg wire.Message) error {
	raw, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", ip, port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(dialTimeout)); err != nil {
		return fmt.Errorf("transport: set deadline: %w", err)
	}
	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("transport: write to %s: %w", addr, err)
	}
	return nil
}
