package ports

import (
	"context"
	"encoding/json"

	"streamcast/internal/core/domain"
)

// MediaTrack is the opaque streamable handle produced by a media source and
// attached to outbound transports. Its concrete type belongs to the transport
// implementation; the core never looks inside.
type MediaTrack interface{}

// RemoteStream is the opaque handle for media arriving from a peer, consumed
// by the rendering and detection collaborators.
type RemoteStream interface{}

// MediaSource owns the local media (a camera feed, or a file standing in for
// one). The handle is read-only once created: multiple transports may attach
// it without contention.
type MediaSource interface {
	Handle() MediaTrack
	Close() error
}

// PeerTransport is the capability surface the negotiation state machine needs
// from a WebRTC-capable stack: produce and consume session descriptions,
// exchange network candidates, and report connectivity transitions. Callbacks
// may fire from arbitrary goroutines at any time.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(ctx context.Context, desc json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error

	// RestartICE produces a fresh offer with renewed credentials for the
	// existing session so candidate discovery can run again. The caller is
	// responsible for putting the returned offer on the wire.
	RestartICE(ctx context.Context) (json.RawMessage, error)

	AddTrack(track MediaTrack) error

	OnCandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(state domain.TransportState))
	OnRemoteStream(fn func(stream RemoteStream))

	Close() error
}

// TransportFactory creates one PeerTransport per negotiation session.
type TransportFactory interface {
	NewTransport(ctx context.Context) (PeerTransport, error)
}

// Detector is the inference collaborator: given an encoded video frame it
// returns the objects found in it. Consumed only for display, never by the
// negotiation core.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]domain.Detection, error)
}
