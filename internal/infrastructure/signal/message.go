package signal

import (
	"encoding/json"
	"fmt"

	"streamcast/internal/core/ports"
	"streamcast/pkg/validation"
)

// Message is the wire format exchanged over the signaling socket.
// A single envelope carries every event type; unused fields are omitted.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	From      string          `json:"from,omitempty"`
	Clients   []string        `json:"clients,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Wire event types. Clients send join/offer/answer/ice-candidate; the relay
// sends welcome/room-update plus forwarded offers, answers and candidates.
const (
	TypeJoin       = "join"
	TypeWelcome    = ports.EventWelcome
	TypeRoomUpdate = ports.EventRoomUpdate
	TypeOffer      = ports.EventOffer
	TypeAnswer     = ports.EventAnswer
	TypeCandidate  = ports.EventCandidate
)

// DecodeMessage parses and validates an inbound client message.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) validate() error {
	switch m.Type {
	case TypeJoin:
		if err := validation.ValidateRoomID(m.RoomID); err != nil {
			return fmt.Errorf("join message: %w", err)
		}
	case TypeOffer:
		if m.RoomID == "" || len(m.Offer) == 0 {
			return fmt.Errorf("offer message missing roomId or offer")
		}
	case TypeAnswer:
		if m.RoomID == "" || len(m.Answer) == 0 {
			return fmt.Errorf("answer message missing roomId or answer")
		}
	case TypeCandidate:
		if m.RoomID == "" || len(m.Candidate) == 0 {
			return fmt.Errorf("candidate message missing roomId or candidate")
		}
	case "":
		return fmt.Errorf("message missing type")
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
