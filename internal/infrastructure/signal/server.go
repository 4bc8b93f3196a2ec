package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/pkg/tracing"
	"streamcast/pkg/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options controls relay connection handling.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimit      bool
	MessagesPerSec float64
	MessageBurst   int
}

// DefaultOptions returns the relay defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		RateLimit:      false,
		MessagesPerSec: 100,
		MessageBurst:   200,
	}
}

// connection is a single signaling peer attached to the relay.
type connection struct {
	id      domain.ParticipantID
	ws      *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
}

func (c *connection) send(timeout time.Duration, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// Relay accepts signaling connections, assigns participant identities and
// fans messages out to room members. It never interprets session
// descriptions or candidates; payloads pass through opaque.
type Relay struct {
	registry  ports.RoomRegistry
	collector *monitoring.Collector
	logger    *zap.SugaredLogger
	opts      Options
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[domain.ParticipantID]*connection
}

// NewRelay creates a relay backed by the given room registry.
func NewRelay(registry ports.RoomRegistry, collector *monitoring.Collector, logger *zap.SugaredLogger, opts Options) *Relay {
	return &Relay{
		registry:  registry,
		collector: collector,
		logger:    logger,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[domain.ParticipantID]*connection),
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warnw("websocket upgrade failed", "error", err, "remote", req.RemoteAddr)
		return
	}

	conn := &connection{
		id: domain.ParticipantID(uuid.New().String()),
		ws: ws,
	}
	if r.opts.RateLimit {
		conn.limiter = rate.NewLimiter(rate.Limit(r.opts.MessagesPerSec), r.opts.MessageBurst)
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	r.mu.Unlock()
	r.collector.RecordConnect()
	r.logger.Infow("participant connected", "participant", conn.id, "remote", req.RemoteAddr)

	if err := conn.send(r.opts.WriteTimeout, Message{Type: TypeWelcome, ID: string(conn.id)}); err != nil {
		r.logger.Warnw("welcome send failed", "participant", conn.id, "error", err)
		r.drop(conn)
		return
	}

	done := make(chan struct{})
	go r.pinger(conn, done)
	r.readLoop(conn)
	close(done)
	r.drop(conn)
}

// ConnectionCount reports the number of attached participants.
func (r *Relay) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Relay) pinger(conn *connection, done <-chan struct{}) {
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(r.opts.WriteTimeout); err != nil {
				conn.ws.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (r *Relay) readLoop(conn *connection) {
	conn.ws.SetReadDeadline(time.Now().Add(r.opts.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(r.opts.PongTimeout))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Infow("connection dropped", "participant", conn.id, "error", err)
			}
			return
		}

		if conn.limiter != nil && !conn.limiter.Allow() {
			r.collector.RecordDropped("rate_limit")
			continue
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			// Malformed input never tears the connection down.
			r.logger.Warnw("malformed message", "participant", conn.id, "error", err)
			r.collector.RecordDropped("malformed")
			continue
		}
		r.handleMessage(conn, msg)
	}
}

func (r *Relay) handleMessage(conn *connection, msg Message) {
	ctx, span := tracing.TraceSignalMessage(context.Background(), msg.Type, string(conn.id))
	defer span.End()

	switch msg.Type {
	case TypeJoin:
		r.handleJoin(ctx, conn, domain.RoomID(msg.RoomID))
	case TypeOffer:
		r.forward(ctx, conn, domain.RoomID(msg.RoomID), Message{
			Type:  TypeOffer,
			From:  string(conn.id),
			Offer: msg.Offer,
		})
	case TypeAnswer:
		r.forward(ctx, conn, domain.RoomID(msg.RoomID), Message{
			Type:   TypeAnswer,
			From:   string(conn.id),
			Answer: msg.Answer,
		})
	case TypeCandidate:
		r.forward(ctx, conn, domain.RoomID(msg.RoomID), Message{
			Type:      TypeCandidate,
			From:      string(conn.id),
			Candidate: msg.Candidate,
		})
	}
}

// handleJoin registers the participant and announces the new membership to
// every room member, the joiner included. The registry mutation and the
// broadcast happen under one lock so concurrent joins serialize.
func (r *Relay) handleJoin(ctx context.Context, conn *connection, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, err := r.registry.Join(ctx, conn.id, room)
	if err != nil {
		r.logger.Errorw("join failed", "participant", conn.id, "room", room, "error", err)
		r.collector.RecordDropped("registry_error")
		tracing.RecordError(ctx, err)
		return
	}
	r.collector.RecordJoin()
	r.logger.Infow("participant joined", "participant", conn.id, "room", room, "members", len(members))

	r.broadcastLocked(members, "", Message{
		Type:    TypeRoomUpdate,
		RoomID:  string(room),
		Clients: toStrings(members),
	})
}

// forward relays a negotiation message to every room member except the sender.
func (r *Relay) forward(ctx context.Context, conn *connection, room domain.RoomID, out Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, err := r.registry.MembersOf(ctx, room)
	if err != nil {
		r.logger.Errorw("member lookup failed", "room", room, "error", err)
		r.collector.RecordDropped("registry_error")
		return
	}
	if !domain.ContainsParticipant(members, conn.id) {
		r.logger.Warnw("message from non-member dropped",
			"participant", conn.id, "room", room, "error", domain.ErrParticipantUnknown)
		r.collector.RecordDropped("not_member")
		return
	}

	sent := r.broadcastLocked(members, conn.id, out)
	r.collector.RecordForwarded(out.Type, sent)
	r.logger.Debugw("message forwarded",
		"type", out.Type,
		"from", conn.id,
		"room", room,
		"recipients", sent,
		"payload", utils.TruncateString(payloadOf(out), 80),
	)
}

func payloadOf(msg Message) string {
	switch msg.Type {
	case TypeOffer:
		return string(msg.Offer)
	case TypeAnswer:
		return string(msg.Answer)
	case TypeCandidate:
		return string(msg.Candidate)
	}
	return ""
}

// broadcastLocked writes msg to every listed member except skip. Callers
// hold r.mu. Returns the number of successful deliveries.
func (r *Relay) broadcastLocked(members []domain.ParticipantID, skip domain.ParticipantID, msg Message) int {
	sent := 0
	for _, id := range members {
		if id == skip {
			continue
		}
		target, ok := r.conns[id]
		if !ok {
			continue
		}
		if err := target.send(r.opts.WriteTimeout, msg); err != nil {
			r.logger.Warnw("delivery failed", "participant", id, "type", msg.Type, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// drop detaches a connection and, when it was in a room, announces the
// shrunken membership to the remaining members.
func (r *Relay) drop(conn *connection) {
	conn.ws.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.id]; !ok {
		return
	}
	delete(r.conns, conn.id)
	r.collector.RecordDisconnect()

	membership, ok, err := r.registry.Leave(context.Background(), conn.id)
	if err != nil {
		r.logger.Errorw("leave failed", "participant", conn.id, "error", err)
		return
	}
	r.logger.Infow("participant disconnected", "participant", conn.id)
	if !ok {
		return
	}

	r.broadcastLocked(membership.Members, "", Message{
		Type:    TypeRoomUpdate,
		RoomID:  string(membership.Room),
		Clients: toStrings(membership.Members),
	})
}

func toStrings(ids []domain.ParticipantID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
