package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	clientPingPeriod = 54 * time.Second
)

// Client is the agent-side connection to the relay. It implements
// ports.RelayClient: outbound signaling plus an event stream of everything
// the relay pushes down.
type Client struct {
	ws     *websocket.Conn
	logger *zap.SugaredLogger

	id     domain.ParticipantID
	events chan ports.RelayEvent

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ ports.RelayClient = (*Client)(nil)

// Dial connects to the relay and waits for the welcome message carrying the
// relay-assigned participant identity.
func Dial(ctx context.Context, url string, logger *zap.SugaredLogger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrRelayUnreachable, url, err)
	}

	ws.SetReadDeadline(time.Now().Add(clientPongWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: awaiting welcome: %v", domain.ErrRelayUnreachable, err)
	}
	var welcome Message
	if err := json.Unmarshal(data, &welcome); err != nil || welcome.Type != TypeWelcome || welcome.ID == "" {
		ws.Close()
		return nil, fmt.Errorf("%w: unexpected first message", domain.ErrRelayUnreachable)
	}

	c := &Client{
		ws:     ws,
		logger: logger,
		id:     domain.ParticipantID(welcome.ID),
		events: make(chan ports.RelayEvent, 32),
		done:   make(chan struct{}),
	}
	go c.readPump()
	go c.pinger()
	return c, nil
}

// ID returns the relay-assigned participant identity.
func (c *Client) ID() domain.ParticipantID { return c.id }

// Events returns the stream of relay events. The channel closes when the
// connection drops or the client is closed.
func (c *Client) Events() <-chan ports.RelayEvent { return c.events }

// Join announces presence in a room. The resulting membership arrives as a
// room-update event.
func (c *Client) Join(room domain.RoomID) error {
	return c.write(Message{Type: TypeJoin, RoomID: string(room)})
}

func (c *Client) SendOffer(room domain.RoomID, offer json.RawMessage) error {
	return c.write(Message{Type: TypeOffer, RoomID: string(room), Offer: offer})
}

func (c *Client) SendAnswer(room domain.RoomID, answer json.RawMessage) error {
	return c.write(Message{Type: TypeAnswer, RoomID: string(room), Answer: answer})
}

func (c *Client) SendCandidate(room domain.RoomID, candidate json.RawMessage) error {
	return c.write(Message{Type: TypeCandidate, RoomID: string(room), Candidate: candidate})
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(clientWriteWait))
		c.writeMu.Unlock()
		c.ws.Close()
	})
	return nil
}

func (c *Client) write(msg Message) error {
	select {
	case <-c.done:
		return domain.ErrRelayUnreachable
	default:
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRelayUnreachable, err)
	}
	return nil
}

func (c *Client) readPump() {
	defer close(c.events)
	c.ws.SetReadDeadline(time.Now().Add(clientPongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warnw("relay connection lost", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("undecodable relay message", "error", err)
			continue
		}
		event, ok := toEvent(msg)
		if !ok {
			continue
		}
		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pinger() {
	ticker := time.NewTicker(clientPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(clientWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func toEvent(msg Message) (ports.RelayEvent, bool) {
	event := ports.RelayEvent{
		Type: msg.Type,
		Room: domain.RoomID(msg.RoomID),
		From: domain.ParticipantID(msg.From),
	}
	switch msg.Type {
	case TypeRoomUpdate:
		event.Clients = make([]domain.ParticipantID, len(msg.Clients))
		for i, id := range msg.Clients {
			event.Clients[i] = domain.ParticipantID(id)
		}
	case TypeOffer:
		event.Payload = msg.Offer
	case TypeAnswer:
		event.Payload = msg.Answer
	case TypeCandidate:
		event.Payload = msg.Candidate
	default:
		return ports.RelayEvent{}, false
	}
	return event, true
}
