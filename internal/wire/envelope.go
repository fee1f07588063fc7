// Package wire is the Message Codec: the on-wire envelope, its
// serialization to a self-delimited byte frame (the connection close
// is the delimiter — spec.md §4.4), and per-type payload validation.
//
// Grounded on the teacher's typed wire structs — ReplicateRequest in
// internal/cluster/replicator.go, QuorumRequest/QuorumResponse in
// internal/cluster/node.go — generalized from "one struct per
// concern" to a closed tagged union over spec.md §6's six message
// types, replacing the original Python's untyped dict payload
// (spec.md §9's "dynamic message payloads" redesign note).
package wire

import "fmt"

// MessageType is the envelope's "type" field.
type MessageType string

const (
	Join      MessageType = "JOIN"
	Update    MessageType = "UPDATE"
	Put       MessageType = "PUT"
	Get       MessageType = "GET"
	Result    MessageType = "RESULT"
	Heartbeat MessageType = "HEARTBEAT"
)

func (t MessageType) valid() bool {
	switch t {
	case Join, Update, Put, Get, Result, Heartbeat:
		return true
	}
	return false
}

// Message is the decoded, validated envelope plus its typed payload.
// Exactly one of the *Payload fields is non-nil, selected by Type.
type Message struct {
	Type      MessageType
	SenderID  string
	Timestamp float64

	JoinData      *JoinPayload
	PutData       *PutPayload
	GetData       *GetPayload
	ResultData    *ResultPayload
	HeartbeatData *HeartbeatPayload
	UpdateData    *UpdatePayload
}

// String is for log lines — e.g. "PUT from 1234abcd".
func (m Message) String() string {
	sender := m.SenderID
	if len(sender) > 8 {
		sender = sender[:8]
	}
	return fmt.Sprintf("%s from %s", m.Type, sender)
}

// NewJoin builds a JOIN message sent when requesting entry to the ring.
func NewJoin(senderID, ip string, port int) Message {
	return Message{Type: Join, SenderID: senderID, JoinData: &JoinPayload{IP: ip, Port: port}}
}

// NewPut builds a PUT message. isReplica flags a replica write so the
// receiver does not re-replicate it (spec.md §4.6).
func NewPut(senderID, key, value string, isReplica bool) Message {
	return Message{Type: Put, SenderID: senderID, PutData: &PutPayload{Key: key, Value: value, IsReplica: isReplica}}
}

// NewGet builds a GET message naming the original requester, so a
// forwarding chain can compare against it for loop detection.
func NewGet(senderID, key, requesterIP string, requesterPort int) Message {
	return Message{Type: Get, SenderID: senderID, GetData: &GetPayload{Key: key, RequesterIP: requesterIP, RequesterPort: requesterPort}}
}

// NewResult builds a RESULT message answering a prior GET.
func NewResult(senderID, key, value string) Message {
	return Message{Type: Result, SenderID: senderID, ResultData: &ResultPayload{Key: key, Value: value}}
}

// NewHeartbeat builds a HEARTBEAT message.
func NewHeartbeat(senderID, ip string, port int) Message {
	return Message{Type: Heartbeat, SenderID: senderID, HeartbeatData: &HeartbeatPayload{IP: ip, Port: port}}
}

// NewUpdate builds an UPDATE message redirecting a neighbor pointer.
// role must be "predecessor" or "successor".
func NewUpdate(senderID, role, ip string, port int) Message {
	return Message{Type: Update, SenderID: senderID, UpdateData: &UpdatePayload{Role: role, IP: ip, Port: port}}
}
