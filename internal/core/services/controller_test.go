package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runController(t *testing.T, sc *SessionController) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sc.Run(context.Background()) }()
	return done
}

func roomUpdate(clients ...domain.ParticipantID) ports.RelayEvent {
	return ports.RelayEvent{
		Type:    ports.EventRoomUpdate,
		Room:    "room-1",
		Clients: clients,
	}
}

func TestSenderOffersEveryNewPeer(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	source := &fakeSource{handle: "track"}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, source, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1", "peer-2"))

	require.Eventually(t, func() bool {
		return len(relay.sentOffers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Each peer got its own transport carrying the shared media handle.
	transports := factory.createdTransports()
	require.Len(t, transports, 2)
	for _, tr := range transports {
		assert.Equal(t, []ports.MediaTrack{"track"}, tr.addedTracks())
	}

	sc.Close()
	require.NoError(t, <-done)
}

func TestSenderDoesNotReofferKnownPeers(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1"))
	require.Eventually(t, func() bool {
		return len(relay.sentOffers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	relay.push(roomUpdate("self", "peer-1"))
	relay.push(roomUpdate("self", "peer-1", "peer-2"))
	require.Eventually(t, func() bool {
		return len(relay.sentOffers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}

func TestReceiverAnswersOffers(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleReceiver, "room-1", relay, factory, nil, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1"))
	relay.push(ports.RelayEvent{
		Type:    ports.EventOffer,
		Room:    "room-1",
		From:    "peer-1",
		Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	require.Eventually(t, func() bool {
		return len(relay.sentAnswers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, relay.sentOffers())

	sc.Close()
	require.NoError(t, <-done)
}

func TestCandidatesBeforeOfferAreReplayed(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleReceiver, "room-1", relay, factory, nil, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(ports.RelayEvent{
		Type:    ports.EventCandidate,
		Room:    "room-1",
		From:    "peer-1",
		Payload: json.RawMessage(`{"candidate":"early"}`),
	})
	relay.push(ports.RelayEvent{
		Type:    ports.EventOffer,
		Room:    "room-1",
		From:    "peer-1",
		Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	require.Eventually(t, func() bool {
		transports := factory.createdTransports()
		return len(transports) == 1 && len(transports[0].sentCandidates()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}

func TestAnswerFromUnknownPeerIsIgnored(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(ports.RelayEvent{
		Type:    ports.EventAnswer,
		Room:    "room-1",
		From:    "stranger",
		Payload: json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
	relay.push(roomUpdate("self"))

	require.Eventually(t, func() bool {
		return len(relay.joinedRooms()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, factory.createdTransports())

	sc.Close()
	require.NoError(t, <-done)
}

func TestStatusFollowsSessionStates(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	require.Eventually(t, func() bool {
		return sc.Status() == domain.StatusConnecting
	}, 2*time.Second, 10*time.Millisecond)

	relay.push(roomUpdate("self", "peer-1"))
	require.Eventually(t, func() bool {
		return len(factory.createdTransports()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	factory.createdTransports()[0].emitState(domain.TransportConnected)
	require.Eventually(t, func() bool {
		return sc.Status() == domain.StatusConnected
	}, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}

func TestRelayDropYieldsErrorStatus(t *testing.T) {
	relay := newFakeRelay("self")
	sc := NewSessionController(RoleReceiver, "room-1", relay, &fakeFactory{}, nil, zap.NewNop().Sugar())
	done := runController(t, sc)

	require.Eventually(t, func() bool {
		return len(relay.joinedRooms()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Simulate the relay dying without a local Close.
	relay.closeOnce.Do(func() { close(relay.events) })

	err := <-done
	assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
	assert.Equal(t, domain.StatusError, sc.Status())
}

func TestCleanCloseYieldsDisconnected(t *testing.T) {
	relay := newFakeRelay("self")
	source := &fakeSource{handle: "track"}
	sc := NewSessionController(RoleSender, "room-1", relay, &fakeFactory{}, source, zap.NewNop().Sugar())
	done := runController(t, sc)

	require.Eventually(t, func() bool {
		return len(relay.joinedRooms()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sc.Close())
	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusDisconnected, sc.Status())
	assert.True(t, source.closed)
}

func TestPeerDepartureMidNegotiationYieldsError(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1"))
	require.Eventually(t, func() bool {
		return len(relay.sentOffers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The answer never comes; the peer drops off the relay instead.
	relay.push(roomUpdate("self"))
	require.Eventually(t, func() bool {
		return sc.Status() == domain.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}

func TestAllSessionsFailedYieldsErrorStatus(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1"))
	require.Eventually(t, func() bool {
		return len(factory.createdTransports()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	transport := factory.createdTransports()[0]
	transport.emitState(domain.TransportFailed)
	transport.emitState(domain.TransportFailed)

	require.Eventually(t, func() bool {
		return sc.Status() == domain.StatusError
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, transport.isClosed, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}

func TestPeerDepartureClosesSession(t *testing.T) {
	relay := newFakeRelay("self")
	factory := &fakeFactory{}
	sc := NewSessionController(RoleSender, "room-1", relay, factory, &fakeSource{handle: "track"}, zap.NewNop().Sugar())
	done := runController(t, sc)

	relay.push(roomUpdate("self", "peer-1"))
	require.Eventually(t, func() bool {
		return len(factory.createdTransports()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	relay.push(roomUpdate("self"))
	require.Eventually(t, func() bool {
		return factory.createdTransports()[0].isClosed()
	}, 2*time.Second, 10*time.Millisecond)

	sc.Close()
	require.NoError(t, <-done)
}
