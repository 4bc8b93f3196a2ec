package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Transport wraps a pion peer connection behind ports.PeerTransport.
// Descriptions and candidates cross the boundary as raw JSON so the core
// never depends on pion types.
type Transport struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu             sync.Mutex
	onCandidate    func(json.RawMessage)
	onStateChange  func(domain.TransportState)
	onRemoteStream func(ports.RemoteStream)
	closed         bool
}

var _ ports.PeerTransport = (*Transport)(nil)

func newTransport(pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *Transport {
	t := &Transport{pc: pc, logger: logger}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			logger.Warnw("candidate marshal failed", "error", err)
			return
		}
		t.mu.Lock()
		fn := t.onCandidate
		t.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		fn := t.onStateChange
		t.mu.Unlock()
		if fn != nil {
			fn(mapState(state))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.mu.Lock()
		fn := t.onRemoteStream
		t.mu.Unlock()
		if fn != nil {
			fn(&RemoteTrack{pc: pc, Track: track, Receiver: receiver})
		}
	})

	return t
}

func (t *Transport) CreateOffer(_ context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (t *Transport) CreateAnswer(_ context.Context) (json.RawMessage, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (t *Transport) SetRemoteDescription(_ context.Context, desc json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(desc, &sd); err != nil {
		return fmt.Errorf("%w: session description: %v", domain.ErrMalformedMessage, err)
	}
	if current := t.pc.RemoteDescription(); current != nil && current.SDP == sd.SDP {
		return nil
	}
	return t.pc.SetRemoteDescription(sd)
}

func (t *Transport) AddCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("%w: ice candidate: %v", domain.ErrMalformedMessage, err)
	}
	return t.pc.AddICECandidate(init)
}

func (t *Transport) RestartICE(_ context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, fmt.Errorf("restart offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (t *Transport) AddTrack(track ports.MediaTrack) error {
	local, ok := track.(webrtc.TrackLocal)
	if !ok {
		return fmt.Errorf("unsupported track type %T", track)
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return err
	}
	// Drain sender reports so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (t *Transport) OnCandidate(fn func(json.RawMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = fn
}

func (t *Transport) OnStateChange(fn func(domain.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

func (t *Transport) OnRemoteStream(fn func(ports.RemoteStream)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemoteStream = fn
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.pc.Close()
}

func mapState(state webrtc.PeerConnectionState) domain.TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		// Disconnected often recovers on its own; treat it as still
		// trying rather than failed.
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.TransportClosed
	default:
		return domain.TransportNew
	}
}
