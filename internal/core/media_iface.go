package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// TransportDirection tells which way media flows over a transport.
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// TransportInfo carries everything a client needs to complete its side of
// the transport handshake.
type TransportInfo struct {
	ID             string                `json:"id"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
	Direction      TransportDirection    `json:"direction"`
}

// MediaEngine is the external media-routing collaborator. The coordinator
// orchestrates sessions over these primitives and never touches media bytes.
type MediaEngine interface {
	CreateRouter(ctx context.Context) (Router, error)
}

// Router is the shared per-room routing context.
type Router interface {
	RTPCapabilities() webrtc.RTPCapabilities
	CreateTransport(ctx context.Context, direction TransportDirection) (MediaTransport, error)
	// CanConsume reports whether the router can bridge the given producer
	// to a receiver with the given capabilities.
	CanConsume(producerID string, caps webrtc.RTPCapabilities) bool
	Close()
}

// MediaTransport is one negotiated media-transport endpoint.
type MediaTransport interface {
	Info() TransportInfo
	Connect(ctx context.Context, dtls webrtc.DTLSParameters) error
	Produce(ctx context.Context, kind webrtc.RTPCodecType, rtp webrtc.RTPParameters) (Producer, error)
	// Consume creates a paused relay of the given producer.
	Consume(ctx context.Context, producerID string, caps webrtc.RTPCapabilities) (Consumer, error)
	Close()
}

// Producer is one outbound media track a peer is sending.
type Producer interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Close()
}

// Consumer is one relay of a specific Producer to a specific peer. It is
// created paused and must be explicitly resumed.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() webrtc.RTPCodecType
	RTPParameters() webrtc.RTPParameters
	Paused() bool
	Resume(ctx context.Context) error
	Close()
}
