package ports

import (
	"context"

	"streamcast/internal/core/domain"
)

// RoomRegistry maps room ids to the set of currently connected participants.
// It is the only shared mutable state in the relay; implementations must make
// every mutation atomic with the member-set snapshot it returns, so that two
// concurrent joins can never broadcast stale membership.
type RoomRegistry interface {
	// Join adds the participant to the room's member set. It is idempotent
	// for repeated joins of the same room and returns the resulting full
	// membership for broadcast.
	Join(ctx context.Context, participant domain.ParticipantID, room domain.RoomID) ([]domain.ParticipantID, error)

	// Leave removes the participant from whatever room it belongs to.
	// ok is false when the participant was not a member of any room.
	Leave(ctx context.Context, participant domain.ParticipantID) (m domain.Membership, ok bool, err error)

	// MembersOf returns the member set of a room; empty for unknown rooms.
	MembersOf(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error)
}
