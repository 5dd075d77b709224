package core

import "github.com/nexora-app/pulse/internal/domain"

// Frame is a raw serialized payload delivered to a client.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Event is one named payload published to clients. The hub serializes it
// once per publish as {"event": ..., "data": ...}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// ClientSession binds a verified user identity and its transport endpoint.
// The identity is set once at the auth handshake and never changes.
type ClientSession interface {
	ID() domain.ConnID
	User() domain.UserID
	Signal() SignalConnection
}
