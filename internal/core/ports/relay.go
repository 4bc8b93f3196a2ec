package ports

import (
	"encoding/json"

	"streamcast/internal/core/domain"
)

// Relay event kinds delivered to a session controller.
const (
	EventWelcome    = "welcome"
	EventRoomUpdate = "room-update"
	EventOffer      = "offer"
	EventAnswer     = "answer"
	EventCandidate  = "ice-candidate"
)

// RelayEvent is one message received from the signaling relay. Payload holds
// the session description or candidate body verbatim; the relay and the
// controller treat it as opaque.
type RelayEvent struct {
	Type    string
	Room    domain.RoomID
	From    domain.ParticipantID
	Clients []domain.ParticipantID
	Payload json.RawMessage
}

// SignalSender transmits negotiation messages to the relay for fan-out to the
// other members of a room.
type SignalSender interface {
	SendOffer(room domain.RoomID, offer json.RawMessage) error
	SendAnswer(room domain.RoomID, answer json.RawMessage) error
	SendCandidate(room domain.RoomID, candidate json.RawMessage) error
}

// RelayClient is one participant's persistent channel to the signaling relay.
// Events is closed when the connection drops; there is no application-level
// leave, closing the client is how a participant leaves its room.
type RelayClient interface {
	SignalSender

	// ID returns the relay-assigned participant id, known once the relay's
	// welcome event has been received.
	ID() domain.ParticipantID

	Join(room domain.RoomID) error
	Events() <-chan RelayEvent
	Close() error
}
