package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"go.uber.org/zap"
)

// Negotiator drives one peer session through description exchange and
// candidate trickling to a connected transport. It owns the session state
// machine; the transport and signal sender are supplied by the caller.
//
// Duplicate offers, answers and candidates are absorbed without state
// regression. Remote candidates arriving before the remote description are
// buffered and applied in arrival order once it lands. A transport failure
// triggers a single ICE restart; a second failure is terminal.
type Negotiator struct {
	role      domain.SessionRole
	self      domain.ParticipantID
	peer      domain.ParticipantID
	room      domain.RoomID
	transport ports.PeerTransport
	sender    ports.SignalSender
	logger    *zap.SugaredLogger

	mu            sync.Mutex
	state         domain.NegotiationState
	localReady    bool
	remoteApplied bool
	remoteDesc    string
	pendingRemote []json.RawMessage
	pendingLocal  []json.RawMessage
	seen          map[string]struct{}
	restarted     bool
	closed        bool
	onStateChange func(domain.NegotiationState)
}

// NewNegotiator creates an idle session toward the given peer. The
// transport's candidate and state callbacks are wired immediately.
func NewNegotiator(role domain.SessionRole, self, peer domain.ParticipantID, room domain.RoomID,
	transport ports.PeerTransport, sender ports.SignalSender, logger *zap.SugaredLogger) *Negotiator {
	n := &Negotiator{
		role:      role,
		self:      self,
		peer:      peer,
		room:      room,
		transport: transport,
		sender:    sender,
		logger:    logger,
		state:     domain.NegotiationIdle,
		seen:      make(map[string]struct{}),
	}
	transport.OnCandidate(n.handleLocalCandidate)
	transport.OnStateChange(n.handleTransportState)
	return n
}

// OnStateChange registers a callback invoked on every state transition.
// Must be set before Start or the first inbound message.
func (n *Negotiator) OnStateChange(fn func(domain.NegotiationState)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onStateChange = fn
}

// State returns the current negotiation state.
func (n *Negotiator) State() domain.NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Peer returns the remote participant this session targets.
func (n *Negotiator) Peer() domain.ParticipantID { return n.peer }

// Start begins negotiation for the initiating side: create an offer, send
// it, and await the answer. Responder sessions start on HandleOffer instead.
func (n *Negotiator) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed || n.state != domain.NegotiationIdle {
		n.mu.Unlock()
		return fmt.Errorf("%w: start in state %s", domain.ErrInvalidTransition, n.state)
	}
	if n.role != domain.RoleInitiator {
		n.mu.Unlock()
		return fmt.Errorf("%w: responder session cannot start negotiation", domain.ErrInvalidTransition)
	}
	n.mu.Unlock()

	offer, err := n.transport.CreateOffer(ctx)
	if err != nil {
		n.fail("offer creation failed", err)
		return fmt.Errorf("%w: create offer: %v", domain.ErrNegotiationFailed, err)
	}

	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	n.transition(domain.NegotiationLocalDescriptionCreated)
	n.localReady = true
	buffered := n.pendingLocal
	n.pendingLocal = nil
	n.mu.Unlock()

	if err := n.sender.SendOffer(n.room, offer); err != nil {
		n.fail("offer send failed", err)
		return fmt.Errorf("%w: send offer: %v", domain.ErrNegotiationFailed, err)
	}
	for _, cand := range buffered {
		if err := n.sender.SendCandidate(n.room, cand); err != nil {
			n.logger.Warnw("buffered candidate send failed", "peer", n.peer, "error", err)
		}
	}

	n.mu.Lock()
	if !n.closed && !n.state.Terminal() {
		n.transition(domain.NegotiationAwaitingRemoteDescription)
	}
	n.mu.Unlock()
	return nil
}

// HandleOffer applies a remote offer and responds with an answer. Only a
// responder session in the idle state acts on it; a repeat of the same
// offer is ignored. On an established session a differing offer is
// honored as an ICE restart, but only after the transport reported a
// failure.
func (n *Negotiator) HandleOffer(ctx context.Context, offer json.RawMessage) error {
	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return nil
	}
	if n.remoteDesc == string(offer) {
		n.mu.Unlock()
		return nil
	}
	if n.role != domain.RoleResponder {
		n.logger.Debugw("offer ignored", "peer", n.peer, "state", n.state)
		n.mu.Unlock()
		return nil
	}
	if n.state != domain.NegotiationIdle {
		// A differing offer on an established session is only an ICE
		// restart when the transport reported a failure first. Offers
		// the relay fans out for other room members never touch this
		// transport.
		if n.restarted && (n.state == domain.NegotiationCandidateExchange || n.state == domain.NegotiationConnected) {
			n.remoteDesc = string(offer)
			n.mu.Unlock()
			return n.answerRestart(ctx, offer)
		}
		n.logger.Debugw("offer ignored", "peer", n.peer, "state", n.state)
		n.mu.Unlock()
		return nil
	}
	n.remoteDesc = string(offer)
	n.mu.Unlock()

	if err := n.transport.SetRemoteDescription(ctx, offer); err != nil {
		n.fail("remote offer rejected", err)
		return fmt.Errorf("%w: set remote offer: %v", domain.ErrNegotiationFailed, err)
	}

	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	n.transition(domain.NegotiationRemoteDescriptionSet)
	n.remoteApplied = true
	queued := n.pendingRemote
	n.pendingRemote = nil
	n.mu.Unlock()

	for _, cand := range queued {
		if err := n.transport.AddCandidate(cand); err != nil {
			n.logger.Warnw("buffered candidate rejected", "peer", n.peer, "error", err)
		}
	}

	answer, err := n.transport.CreateAnswer(ctx)
	if err != nil {
		n.fail("answer creation failed", err)
		return fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailed, err)
	}

	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	n.localReady = true
	buffered := n.pendingLocal
	n.pendingLocal = nil
	n.mu.Unlock()

	if err := n.sender.SendAnswer(n.room, answer); err != nil {
		n.fail("answer send failed", err)
		return fmt.Errorf("%w: send answer: %v", domain.ErrNegotiationFailed, err)
	}
	for _, cand := range buffered {
		if err := n.sender.SendCandidate(n.room, cand); err != nil {
			n.logger.Warnw("buffered candidate send failed", "peer", n.peer, "error", err)
		}
	}

	n.mu.Lock()
	if !n.closed && !n.state.Terminal() {
		n.transition(domain.NegotiationCandidateExchange)
	}
	n.mu.Unlock()
	return nil
}

// HandleAnswer applies a remote answer on the initiating side. Answers
// arriving in any other state, including a duplicate of one already
// applied, are ignored.
func (n *Negotiator) HandleAnswer(ctx context.Context, answer json.RawMessage) error {
	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return nil
	}
	if n.remoteDesc == string(answer) {
		n.mu.Unlock()
		return nil
	}
	if n.state != domain.NegotiationAwaitingRemoteDescription {
		// After a restart offer went out, the matching answer lands here.
		if n.restarted && (n.state == domain.NegotiationCandidateExchange || n.state == domain.NegotiationConnected) {
			n.remoteDesc = string(answer)
			n.mu.Unlock()
			if err := n.transport.SetRemoteDescription(ctx, answer); err != nil {
				n.fail("restart answer rejected", err)
				return fmt.Errorf("%w: set restart answer: %v", domain.ErrNegotiationFailed, err)
			}
			return nil
		}
		n.logger.Debugw("answer ignored", "peer", n.peer, "state", n.state)
		n.mu.Unlock()
		return nil
	}
	n.remoteDesc = string(answer)
	n.mu.Unlock()

	if err := n.transport.SetRemoteDescription(ctx, answer); err != nil {
		n.fail("remote answer rejected", err)
		return fmt.Errorf("%w: set remote answer: %v", domain.ErrNegotiationFailed, err)
	}

	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	n.transition(domain.NegotiationRemoteDescriptionSet)
	n.remoteApplied = true
	queued := n.pendingRemote
	n.pendingRemote = nil
	n.transition(domain.NegotiationCandidateExchange)
	n.mu.Unlock()

	for _, cand := range queued {
		if err := n.transport.AddCandidate(cand); err != nil {
			n.logger.Warnw("buffered candidate rejected", "peer", n.peer, "error", err)
		}
	}
	return nil
}

// HandleCandidate feeds a remote ICE candidate into the transport,
// buffering it when the remote description is not applied yet. Repeats of
// a candidate already seen are dropped.
func (n *Negotiator) HandleCandidate(candidate json.RawMessage) error {
	key := string(candidate)

	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return nil
	}
	if _, dup := n.seen[key]; dup {
		n.mu.Unlock()
		return nil
	}
	n.seen[key] = struct{}{}
	if !n.remoteApplied {
		n.pendingRemote = append(n.pendingRemote, candidate)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if err := n.transport.AddCandidate(candidate); err != nil {
		// A single bad candidate is survivable; the transport keeps
		// working with the rest.
		n.logger.Warnw("candidate rejected", "peer", n.peer, "error", err)
	}
	return nil
}

// PeerLeft reports that the remote participant dropped off the relay. A
// session that never reached Connected cannot complete anymore and fails
// immediately. An established session is left alone; the transport notices
// the loss itself and the failure path runs from there.
func (n *Negotiator) PeerLeft() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.state.Terminal() {
		return
	}
	if n.state != domain.NegotiationConnected {
		n.logger.Warnw("peer left before session established", "peer", n.peer)
		n.transition(domain.NegotiationFailed)
		return
	}
	n.logger.Infow("peer left established session", "peer", n.peer)
}

// Close tears the session down without marking it failed.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	return n.transport.Close()
}

// answerRestart applies a restart offer on an established session and
// returns a fresh answer. State stays where it is; connectivity recovery
// shows up through the transport state callback.
func (n *Negotiator) answerRestart(ctx context.Context, offer json.RawMessage) error {
	n.logger.Infow("answering ICE restart", "peer", n.peer)
	if err := n.transport.SetRemoteDescription(ctx, offer); err != nil {
		n.fail("restart offer rejected", err)
		return fmt.Errorf("%w: set restart offer: %v", domain.ErrNegotiationFailed, err)
	}
	answer, err := n.transport.CreateAnswer(ctx)
	if err != nil {
		n.fail("restart answer failed", err)
		return fmt.Errorf("%w: create restart answer: %v", domain.ErrNegotiationFailed, err)
	}
	if err := n.sender.SendAnswer(n.room, answer); err != nil {
		n.fail("restart answer send failed", err)
		return fmt.Errorf("%w: send restart answer: %v", domain.ErrNegotiationFailed, err)
	}
	return nil
}

// handleLocalCandidate trickles transport-generated candidates to the
// relay. Candidates gathered before the local description is on the wire
// are held back until it is.
func (n *Negotiator) handleLocalCandidate(candidate json.RawMessage) {
	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return
	}
	if !n.localReady {
		n.pendingLocal = append(n.pendingLocal, candidate)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	if err := n.sender.SendCandidate(n.room, candidate); err != nil {
		n.logger.Warnw("candidate send failed", "peer", n.peer, "error", err)
	}
}

// handleTransportState reacts to transport connectivity changes. A failure
// gets one ICE restart; failing again is terminal.
func (n *Negotiator) handleTransportState(state domain.TransportState) {
	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return
	}

	switch state {
	case domain.TransportConnected:
		n.transition(domain.NegotiationConnected)
		n.mu.Unlock()

	case domain.TransportFailed:
		if n.restarted {
			n.transition(domain.NegotiationFailed)
			n.mu.Unlock()
			return
		}
		n.restarted = true
		role := n.role
		n.mu.Unlock()

		// The initiator owns the restart offer; the responder sits
		// tight and answers it when it arrives.
		if role != domain.RoleInitiator {
			n.logger.Warnw("transport failed, awaiting restart offer", "peer", n.peer)
			return
		}
		n.logger.Warnw("transport failed, restarting ICE", "peer", n.peer)
		offer, err := n.transport.RestartICE(context.Background())
		if err != nil {
			n.fail("ICE restart failed", err)
			return
		}
		if err := n.sender.SendOffer(n.room, offer); err != nil {
			n.fail("restart offer send failed", err)
		}

	case domain.TransportClosed:
		n.mu.Unlock()

	default:
		n.mu.Unlock()
	}
}

func (n *Negotiator) fail(reason string, err error) {
	n.mu.Lock()
	if n.closed || n.state.Terminal() {
		n.mu.Unlock()
		return
	}
	n.logger.Errorw("negotiation failed", "peer", n.peer, "reason", reason, "error", err)
	n.transition(domain.NegotiationFailed)
	n.mu.Unlock()
}

// transition moves the state machine forward. Callers hold n.mu. A
// Connected session only ever moves to Failed; intermediate states cannot
// be re-entered once passed.
func (n *Negotiator) transition(next domain.NegotiationState) {
	if n.state == next {
		return
	}
	if n.state == domain.NegotiationConnected && next != domain.NegotiationFailed {
		return
	}
	if next < n.state && next != domain.NegotiationFailed {
		return
	}
	n.logger.Debugw("negotiation state", "peer", n.peer, "from", n.state, "to", next)
	n.state = next
	if n.onStateChange != nil {
		go n.onStateChange(next)
	}
}
