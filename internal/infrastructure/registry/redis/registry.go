package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "streamcast:"

// Registry is a Redis-backed room registry for deployments running more than
// one relay instance against shared room state. A process-local mutex keeps
// the mutate-then-snapshot sequence of this relay serialized, matching the
// guarantee of the memory registry.
type Registry struct {
	client *redis.Client
	mu     sync.Mutex
}

func NewRegistry(client *redis.Client) *Registry {
	return &Registry{client: client}
}

var _ ports.RoomRegistry = (*Registry)(nil)

func roomKey(room domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:members", keyPrefix, room)
}

func participantKey(p domain.ParticipantID) string {
	return fmt.Sprintf("%sparticipant:%s:room", keyPrefix, p)
}

func (r *Registry) Join(ctx context.Context, participant domain.ParticipantID, room domain.RoomID) ([]domain.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Move semantics: joining a new room removes the previous membership.
	prev, err := r.client.Get(ctx, participantKey(participant)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read participant room: %w", err)
	}
	if err == nil && domain.RoomID(prev) != room {
		if err := r.client.SRem(ctx, roomKey(domain.RoomID(prev)), string(participant)).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove participant from previous room: %w", err)
		}
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, roomKey(room), string(participant))
	pipe.Set(ctx, participantKey(participant), string(room), 0)
	members := pipe.SMembers(ctx, roomKey(room))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to join room in Redis: %w", err)
	}

	return toParticipants(members.Val()), nil
}

func (r *Registry) Leave(ctx context.Context, participant domain.ParticipantID) (domain.Membership, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.client.Get(ctx, participantKey(participant)).Result()
	if err == redis.Nil {
		return domain.Membership{}, false, nil
	}
	if err != nil {
		return domain.Membership{}, false, fmt.Errorf("failed to read participant room: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, participantKey(participant))
	pipe.SRem(ctx, roomKey(domain.RoomID(room)), string(participant))
	members := pipe.SMembers(ctx, roomKey(domain.RoomID(room)))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Membership{}, false, fmt.Errorf("failed to leave room in Redis: %w", err)
	}

	return domain.Membership{
		Room:    domain.RoomID(room),
		Members: toParticipants(members.Val()),
	}, true, nil
}

func (r *Registry) MembersOf(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	members, err := r.client.SMembers(ctx, roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room members: %w", err)
	}
	return toParticipants(members), nil
}

func toParticipants(ids []string) []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ParticipantID(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
