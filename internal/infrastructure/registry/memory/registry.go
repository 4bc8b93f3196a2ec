package memory

import (
	"context"
	"sort"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// Registry is the in-process room registry. A single mutex serializes every
// mutation with the member-set snapshot it returns, so concurrent joins can
// never observe each other's half-applied state.
type Registry struct {
	mu            sync.RWMutex
	rooms         map[domain.RoomID]map[domain.ParticipantID]struct{}
	byParticipant map[domain.ParticipantID]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:         make(map[domain.RoomID]map[domain.ParticipantID]struct{}),
		byParticipant: make(map[domain.ParticipantID]domain.RoomID),
	}
}

var _ ports.RoomRegistry = (*Registry)(nil)

func (r *Registry) Join(ctx context.Context, participant domain.ParticipantID, room domain.RoomID) ([]domain.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A participant belongs to at most one room; a join while already a
	// member of another room moves it.
	if prev, ok := r.byParticipant[participant]; ok && prev != room {
		delete(r.rooms[prev], participant)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ParticipantID]struct{})
		r.rooms[room] = members
	}
	members[participant] = struct{}{}
	r.byParticipant[participant] = room

	return snapshot(members), nil
}

func (r *Registry) Leave(ctx context.Context, participant domain.ParticipantID) (domain.Membership, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.byParticipant[participant]
	if !ok {
		return domain.Membership{}, false, nil
	}

	delete(r.byParticipant, participant)
	members := r.rooms[room]
	delete(members, participant)

	// Empty rooms persist; the registry is bounded by concurrent
	// connections, not by historical rooms.
	return domain.Membership{Room: room, Members: snapshot(members)}, true, nil
}

func (r *Registry) MembersOf(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return snapshot(r.rooms[room]), nil
}

func snapshot(members map[domain.ParticipantID]struct{}) []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	// Deterministic order for logs and tests; membership itself is a set.
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
