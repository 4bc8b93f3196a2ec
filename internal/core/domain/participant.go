package domain

// ParticipantID is the opaque, relay-assigned identifier for one connected
// endpoint. It is unique per connection: created when the connection is
// accepted, freed when it drops.
type ParticipantID string

// RoomID is the caller-supplied name of a room. Rooms are created lazily on
// first join and never explicitly destroyed.
type RoomID string

// Membership is the result of a registry mutation: the room affected and the
// member set snapshot taken atomically with the mutation.
type Membership struct {
	Room    RoomID
	Members []ParticipantID
}

// ContainsParticipant reports whether id is present in members.
func ContainsParticipant(members []ParticipantID, id ParticipantID) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}
