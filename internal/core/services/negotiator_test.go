package services

import (
	"context"
	"encoding/json"
	"testing"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInitiator(t *testing.T) (*Negotiator, *fakeTransport, *fakeSender) {
	t.Helper()
	transport := newFakeTransport()
	sender := &fakeSender{}
	n := NewNegotiator(domain.RoleInitiator, "self", "peer", "room-1",
		transport, sender, zap.NewNop().Sugar())
	return n, transport, sender
}

func newResponder(t *testing.T) (*Negotiator, *fakeTransport, *fakeSender) {
	t.Helper()
	transport := newFakeTransport()
	sender := &fakeSender{}
	n := NewNegotiator(domain.RoleResponder, "self", "peer", "room-1",
		transport, sender, zap.NewNop().Sugar())
	return n, transport, sender
}

func TestInitiatorFlow(t *testing.T) {
	n, transport, sender := newInitiator(t)
	ctx := context.Background()

	assert.Equal(t, domain.NegotiationIdle, n.State())
	assert.Equal(t, domain.ParticipantID("peer"), n.Peer())

	require.NoError(t, n.Start(ctx))
	assert.Equal(t, domain.NegotiationAwaitingRemoteDescription, n.State())
	require.Len(t, sender.sentOffers(), 1)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	require.NoError(t, n.HandleAnswer(ctx, answer))
	assert.Equal(t, domain.NegotiationCandidateExchange, n.State())
	assert.Equal(t, 1, transport.remoteCount())

	transport.emitState(domain.TransportConnected)
	assert.Equal(t, domain.NegotiationConnected, n.State())
}

func TestResponderFlow(t *testing.T) {
	n, transport, sender := newResponder(t)
	ctx := context.Background()

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, n.HandleOffer(ctx, offer))
	assert.Equal(t, domain.NegotiationCandidateExchange, n.State())
	assert.Equal(t, 1, transport.remoteCount())
	require.Len(t, sender.sentAnswers(), 1)
}

func TestStartTwiceIsRejected(t *testing.T) {
	n, _, sender := newInitiator(t)
	ctx := context.Background()

	require.NoError(t, n.Start(ctx))
	err := n.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, sender.sentOffers(), 1)
}

func TestResponderCannotStart(t *testing.T) {
	n, _, _ := newResponder(t)
	assert.ErrorIs(t, n.Start(context.Background()), domain.ErrInvalidTransition)
}

func TestDuplicateAnswerIsAbsorbed(t *testing.T) {
	n, transport, _ := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	require.NoError(t, n.HandleAnswer(ctx, answer))
	require.NoError(t, n.HandleAnswer(ctx, answer))
	assert.Equal(t, 1, transport.remoteCount())
	assert.Equal(t, domain.NegotiationCandidateExchange, n.State())
}

func TestDuplicateOfferIsAbsorbed(t *testing.T) {
	n, transport, sender := newResponder(t)
	ctx := context.Background()

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, n.HandleOffer(ctx, offer))
	require.NoError(t, n.HandleOffer(ctx, offer))
	assert.Equal(t, 1, transport.remoteCount())
	assert.Len(t, sender.sentAnswers(), 1)
}

func TestRemoteCandidatesBufferUntilDescription(t *testing.T) {
	n, transport, _ := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))

	require.NoError(t, n.HandleCandidate(json.RawMessage(`{"candidate":"one"}`)))
	require.NoError(t, n.HandleCandidate(json.RawMessage(`{"candidate":"two"}`)))
	assert.Empty(t, transport.sentCandidates())

	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0"}`)))
	assert.Equal(t, []string{`{"candidate":"one"}`, `{"candidate":"two"}`}, transport.sentCandidates())

	// Now candidates apply directly.
	require.NoError(t, n.HandleCandidate(json.RawMessage(`{"candidate":"three"}`)))
	assert.Len(t, transport.sentCandidates(), 3)
}

func TestDuplicateCandidateIsDropped(t *testing.T) {
	n, transport, _ := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0"}`)))

	cand := json.RawMessage(`{"candidate":"one"}`)
	require.NoError(t, n.HandleCandidate(cand))
	require.NoError(t, n.HandleCandidate(cand))
	assert.Len(t, transport.sentCandidates(), 1)
}

func TestLocalCandidatesBufferUntilLocalDescription(t *testing.T) {
	n, transport, sender := newResponder(t)

	transport.emitCandidate(`{"candidate":"early"}`)
	assert.Empty(t, sender.sentCandidates())

	require.NoError(t, n.HandleOffer(context.Background(), json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	assert.Equal(t, []string{`{"candidate":"early"}`}, sender.sentCandidates())

	transport.emitCandidate(`{"candidate":"late"}`)
	assert.Len(t, sender.sentCandidates(), 2)
}

func TestTransportFailureRestartsOnceThenFails(t *testing.T) {
	n, transport, sender := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0"}`)))
	transport.emitState(domain.TransportConnected)
	require.Equal(t, domain.NegotiationConnected, n.State())

	// First failure: one restart offer goes back out.
	transport.emitState(domain.TransportFailed)
	assert.Equal(t, 1, transport.restarts)
	assert.Len(t, sender.sentOffers(), 2)
	assert.Equal(t, domain.NegotiationConnected, n.State())

	// Second failure is terminal.
	transport.emitState(domain.TransportFailed)
	assert.Equal(t, domain.NegotiationFailed, n.State())
	assert.Equal(t, 1, transport.restarts)
}

func TestResponderAnswersRestartOffer(t *testing.T) {
	n, transport, sender := newResponder(t)
	ctx := context.Background()
	require.NoError(t, n.HandleOffer(ctx, json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	transport.emitState(domain.TransportConnected)

	// The responder sits out the failure and answers the restart offer
	// when it arrives.
	transport.emitState(domain.TransportFailed)
	require.NoError(t, n.HandleOffer(ctx, json.RawMessage(`{"type":"offer","sdp":"v=0 restart"}`)))
	assert.Equal(t, 2, transport.remoteCount())
	assert.Len(t, sender.sentAnswers(), 2)
	assert.Equal(t, domain.NegotiationConnected, n.State())
}

func TestEstablishedResponderIgnoresForeignOffer(t *testing.T) {
	n, transport, sender := newResponder(t)
	ctx := context.Background()
	require.NoError(t, n.HandleOffer(ctx, json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	transport.emitState(domain.TransportConnected)

	// The relay fans every offer out to the whole room, so an offer the
	// sender made to another member arrives here too. With no transport
	// failure it must not be applied as a restart.
	require.NoError(t, n.HandleOffer(ctx, json.RawMessage(`{"type":"offer","sdp":"v=0 other-peer"}`)))
	assert.Equal(t, 1, transport.remoteCount())
	assert.Len(t, sender.sentAnswers(), 1)
	assert.Equal(t, domain.NegotiationConnected, n.State())
}

func TestPeerLeftMidNegotiationFailsSession(t *testing.T) {
	n, _, _ := newInitiator(t)
	require.NoError(t, n.Start(context.Background()))

	n.PeerLeft()
	assert.Equal(t, domain.NegotiationFailed, n.State())
}

func TestPeerLeftWhenConnectedLeavesSessionToTransport(t *testing.T) {
	n, transport, _ := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0"}`)))
	transport.emitState(domain.TransportConnected)

	n.PeerLeft()
	assert.Equal(t, domain.NegotiationConnected, n.State())

	transport.emitState(domain.TransportFailed)
	transport.emitState(domain.TransportFailed)
	assert.Equal(t, domain.NegotiationFailed, n.State())
}

func TestInitiatorAppliesRestartAnswer(t *testing.T) {
	n, transport, _ := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0"}`)))
	transport.emitState(domain.TransportConnected)
	transport.emitState(domain.TransportFailed)

	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"v=0 restart"}`)))
	assert.Equal(t, 2, transport.remoteCount())
}

func TestFailedSessionIgnoresEverything(t *testing.T) {
	n, transport, sender := newInitiator(t)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	transport.emitState(domain.TransportFailed)
	transport.emitState(domain.TransportFailed)
	require.Equal(t, domain.NegotiationFailed, n.State())

	offers := len(sender.sentOffers())
	require.NoError(t, n.HandleAnswer(ctx, json.RawMessage(`{"type":"answer","sdp":"late"}`)))
	require.NoError(t, n.HandleCandidate(json.RawMessage(`{"candidate":"late"}`)))
	transport.emitState(domain.TransportConnected)

	assert.Equal(t, domain.NegotiationFailed, n.State())
	assert.Len(t, sender.sentOffers(), offers)
	assert.Empty(t, transport.sentCandidates())
}

func TestOfferCreationFailureIsTerminal(t *testing.T) {
	transport := newFakeTransport()
	transport.createOfferErr = assert.AnError
	sender := &fakeSender{}
	n := NewNegotiator(domain.RoleInitiator, "self", "peer", "room-1",
		transport, sender, zap.NewNop().Sugar())

	err := n.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
	assert.Equal(t, domain.NegotiationFailed, n.State())
}

func TestCloseStopsCallbacks(t *testing.T) {
	n, transport, sender := newInitiator(t)
	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Close())
	assert.True(t, transport.isClosed())

	before := len(sender.sentCandidates())
	transport.emitCandidate(`{"candidate":"after-close"}`)
	assert.Len(t, sender.sentCandidates(), before)
}
