package services

import (
	"context"
	"encoding/json"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"go.uber.org/zap"
)

// Role selects which side of the exchange an agent plays. Senders publish
// a local media source and initiate negotiation toward every peer; receivers
// answer offers and consume the arriving streams.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// SessionController ties the relay event stream to per-peer negotiation
// sessions. One controller serves one room membership; it creates a session
// per remote peer and routes forwarded messages to the right one.
type SessionController struct {
	role    Role
	room    domain.RoomID
	relay   ports.RelayClient
	factory ports.TransportFactory
	source  ports.MediaSource
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.ParticipantID]*Negotiator
	pending  map[domain.ParticipantID][]json.RawMessage
	status   domain.ConnStatus
	closed   bool

	onStatus       func(domain.ConnStatus)
	onRemoteStream func(domain.ParticipantID, ports.RemoteStream)
}

// NewSessionController builds a controller. source may be nil for receivers.
func NewSessionController(role Role, room domain.RoomID, relay ports.RelayClient,
	factory ports.TransportFactory, source ports.MediaSource, logger *zap.SugaredLogger) *SessionController {
	return &SessionController{
		role:     role,
		room:     room,
		relay:    relay,
		factory:  factory,
		source:   source,
		logger:   logger,
		sessions: make(map[domain.ParticipantID]*Negotiator),
		pending:  make(map[domain.ParticipantID][]json.RawMessage),
		status:   domain.StatusDisconnected,
	}
}

// OnStatusChange registers a callback for aggregate status transitions.
// Must be set before Run.
func (sc *SessionController) OnStatusChange(fn func(domain.ConnStatus)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onStatus = fn
}

// OnRemoteStream registers a callback invoked when a peer's media arrives.
// Must be set before Run.
func (sc *SessionController) OnRemoteStream(fn func(domain.ParticipantID, ports.RemoteStream)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onRemoteStream = fn
}

// Status returns the aggregate connection status.
func (sc *SessionController) Status() domain.ConnStatus {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.status
}

// Run joins the room and processes relay events until the stream ends or
// the context is cancelled. A clean Close yields StatusDisconnected; an
// unexpected relay drop yields StatusError.
func (sc *SessionController) Run(ctx context.Context) error {
	if err := sc.relay.Join(sc.room); err != nil {
		sc.setStatus(domain.StatusError)
		return err
	}
	sc.setStatus(domain.StatusConnecting)
	sc.logger.Infow("joined room", "room", sc.room, "participant", sc.relay.ID(), "role", sc.role)

	for {
		select {
		case <-ctx.Done():
			sc.Close()
			return ctx.Err()
		case event, ok := <-sc.relay.Events():
			if !ok {
				sc.mu.Lock()
				wasClosed := sc.closed
				sc.mu.Unlock()
				if wasClosed {
					sc.setStatus(domain.StatusDisconnected)
					return nil
				}
				sc.setStatus(domain.StatusError)
				return domain.ErrRelayUnreachable
			}
			sc.dispatch(ctx, event)
		}
	}
}

// Close shuts down every session and the relay connection.
func (sc *SessionController) Close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	sessions := make([]*Negotiator, 0, len(sc.sessions))
	for _, s := range sc.sessions {
		sessions = append(sessions, s)
	}
	sc.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if sc.source != nil {
		sc.source.Close()
	}
	return sc.relay.Close()
}

func (sc *SessionController) dispatch(ctx context.Context, event ports.RelayEvent) {
	switch event.Type {
	case ports.EventRoomUpdate:
		sc.handleRoomUpdate(ctx, event.Clients)
	case ports.EventOffer:
		sc.handleOffer(ctx, event.From, event.Payload)
	case ports.EventAnswer:
		sc.handleAnswer(ctx, event.From, event.Payload)
	case ports.EventCandidate:
		sc.handleCandidate(event.From, event.Payload)
	}
}

// handleRoomUpdate reconciles sessions against the announced membership.
// Senders open an initiating session toward every new peer. A departed
// peer's session is not reaped: one that never connected fails on the
// spot, an established one stays until its transport reports the loss, so
// either way the failure shows up in the aggregate status.
func (sc *SessionController) handleRoomUpdate(ctx context.Context, clients []domain.ParticipantID) {
	self := sc.relay.ID()

	present := make(map[domain.ParticipantID]struct{}, len(clients))
	for _, id := range clients {
		if id != self {
			present[id] = struct{}{}
		}
	}

	sc.mu.Lock()
	var departed []*Negotiator
	for peer, session := range sc.sessions {
		if _, ok := present[peer]; !ok {
			departed = append(departed, session)
		}
	}
	for peer := range sc.pending {
		if _, ok := present[peer]; !ok {
			delete(sc.pending, peer)
		}
	}
	var fresh []domain.ParticipantID
	if sc.role == RoleSender {
		for peer := range present {
			if _, ok := sc.sessions[peer]; !ok {
				fresh = append(fresh, peer)
			}
		}
	}
	sc.mu.Unlock()

	for _, session := range departed {
		session.PeerLeft()
	}
	for _, peer := range fresh {
		session, err := sc.startSession(ctx, peer, domain.RoleInitiator)
		if err != nil {
			sc.logger.Errorw("session setup failed", "peer", peer, "error", err)
			continue
		}
		if err := session.Start(ctx); err != nil {
			sc.logger.Errorw("negotiation start failed", "peer", peer, "error", err)
		}
	}
	sc.recomputeStatus()
}

func (sc *SessionController) handleOffer(ctx context.Context, from domain.ParticipantID, offer json.RawMessage) {
	sc.mu.Lock()
	session, ok := sc.sessions[from]
	sc.mu.Unlock()

	if !ok {
		if sc.role != RoleReceiver {
			sc.logger.Debugw("offer from unknown peer ignored", "from", from)
			return
		}
		var err error
		session, err = sc.startSession(ctx, from, domain.RoleResponder)
		if err != nil {
			sc.logger.Errorw("session setup failed", "peer", from, "error", err)
			return
		}
		sc.replayPending(from, session)
	}

	if err := session.HandleOffer(ctx, offer); err != nil {
		sc.logger.Errorw("offer handling failed", "peer", from, "error", err)
	}
	sc.recomputeStatus()
}

func (sc *SessionController) handleAnswer(ctx context.Context, from domain.ParticipantID, answer json.RawMessage) {
	sc.mu.Lock()
	session, ok := sc.sessions[from]
	sc.mu.Unlock()
	if !ok {
		sc.logger.Debugw("answer dropped", "from", from, "error", domain.ErrSessionNotFound)
		return
	}
	if err := session.HandleAnswer(ctx, answer); err != nil {
		sc.logger.Errorw("answer handling failed", "peer", from, "error", err)
	}
	sc.recomputeStatus()
}

// handleCandidate routes a candidate to its session, or holds it until an
// offer from that peer creates one.
func (sc *SessionController) handleCandidate(from domain.ParticipantID, candidate json.RawMessage) {
	sc.mu.Lock()
	session, ok := sc.sessions[from]
	if !ok {
		sc.pending[from] = append(sc.pending[from], candidate)
		sc.mu.Unlock()
		return
	}
	sc.mu.Unlock()

	if err := session.HandleCandidate(candidate); err != nil {
		sc.logger.Warnw("candidate handling failed", "peer", from, "error", err)
	}
}

func (sc *SessionController) replayPending(peer domain.ParticipantID, session *Negotiator) {
	sc.mu.Lock()
	queued := sc.pending[peer]
	delete(sc.pending, peer)
	sc.mu.Unlock()

	for _, cand := range queued {
		if err := session.HandleCandidate(cand); err != nil {
			sc.logger.Warnw("buffered candidate failed", "peer", peer, "error", err)
		}
	}
}

func (sc *SessionController) startSession(ctx context.Context, peer domain.ParticipantID, role domain.SessionRole) (*Negotiator, error) {
	transport, err := sc.factory.NewTransport(ctx)
	if err != nil {
		return nil, err
	}
	if sc.source != nil && role == domain.RoleInitiator {
		if err := transport.AddTrack(sc.source.Handle()); err != nil {
			transport.Close()
			return nil, err
		}
	}
	if sc.onRemoteStream != nil {
		p := peer
		transport.OnRemoteStream(func(stream ports.RemoteStream) {
			sc.onRemoteStream(p, stream)
		})
	}

	session := NewNegotiator(role, sc.relay.ID(), peer, sc.room, transport, sc.relay, sc.logger)
	session.OnStateChange(func(state domain.NegotiationState) {
		if state == domain.NegotiationFailed {
			session.Close()
		}
		sc.recomputeStatus()
	})

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		transport.Close()
		return nil, domain.ErrControllerClosed
	}
	sc.sessions[peer] = session
	sc.mu.Unlock()

	sc.logger.Infow("session created", "peer", peer, "role", role)
	return session, nil
}

// recomputeStatus derives the aggregate status from the session set: any
// connected session wins, otherwise any live negotiation reports
// connecting, otherwise all-failed reports error.
func (sc *SessionController) recomputeStatus() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	anyConnected := false
	anyLive := false
	anyFailed := false
	for _, s := range sc.sessions {
		switch st := s.State(); {
		case st == domain.NegotiationConnected:
			anyConnected = true
		case st == domain.NegotiationFailed:
			anyFailed = true
		default:
			anyLive = true
		}
	}
	next := domain.StatusConnecting
	switch {
	case anyConnected:
		next = domain.StatusConnected
	case anyLive:
		next = domain.StatusConnecting
	case anyFailed:
		next = domain.StatusError
	}
	changed := next != sc.status
	sc.status = next
	fn := sc.onStatus
	sc.mu.Unlock()

	if changed && fn != nil {
		fn(next)
	}
}

func (sc *SessionController) setStatus(status domain.ConnStatus) {
	sc.mu.Lock()
	changed := status != sc.status
	sc.status = status
	fn := sc.onStatus
	sc.mu.Unlock()
	if changed && fn != nil {
		fn(status)
	}
}
