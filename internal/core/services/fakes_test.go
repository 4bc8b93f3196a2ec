package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// fakeTransport records every interaction and lets tests drive the
// callbacks a real transport would fire.
type fakeTransport struct {
	mu          sync.Mutex
	offerCount  int
	answerCount int
	remoteDescs []string
	candidates  []string
	restarts    int
	tracks      []ports.MediaTrack
	closed      bool

	createOfferErr  error
	createAnswerErr error
	setRemoteErr    error

	onCandidate func(json.RawMessage)
	onState     func(domain.TransportState)
	onRemote    func(ports.RemoteStream)
}

var _ ports.PeerTransport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) CreateOffer(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createOfferErr != nil {
		return nil, f.createOfferErr
	}
	f.offerCount++
	return json.RawMessage(fmt.Sprintf(`{"type":"offer","sdp":"v=0 o=%d"}`, f.offerCount)), nil
}

func (f *fakeTransport) CreateAnswer(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAnswerErr != nil {
		return nil, f.createAnswerErr
	}
	f.answerCount++
	return json.RawMessage(fmt.Sprintf(`{"type":"answer","sdp":"v=0 a=%d"}`, f.answerCount)), nil
}

func (f *fakeTransport) SetRemoteDescription(_ context.Context, desc json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setRemoteErr != nil {
		return f.setRemoteErr
	}
	f.remoteDescs = append(f.remoteDescs, string(desc))
	return nil
}

func (f *fakeTransport) AddCandidate(candidate json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, string(candidate))
	return nil
}

func (f *fakeTransport) RestartICE(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return json.RawMessage(fmt.Sprintf(`{"type":"offer","sdp":"v=0 restart=%d"}`, f.restarts)), nil
}

func (f *fakeTransport) AddTrack(track ports.MediaTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return nil
}

func (f *fakeTransport) OnCandidate(fn func(json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = fn
}

func (f *fakeTransport) OnStateChange(fn func(domain.TransportState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeTransport) OnRemoteStream(fn func(ports.RemoteStream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRemote = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) emitCandidate(candidate string) {
	f.mu.Lock()
	fn := f.onCandidate
	f.mu.Unlock()
	fn(json.RawMessage(candidate))
}

func (f *fakeTransport) emitState(state domain.TransportState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	fn(state)
}

func (f *fakeTransport) sentCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.candidates))
	copy(out, f.candidates)
	return out
}

func (f *fakeTransport) remoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.remoteDescs)
}

func (f *fakeTransport) addedTracks() []ports.MediaTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.MediaTrack, len(f.tracks))
	copy(out, f.tracks)
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSender records outbound signaling.
type fakeSender struct {
	mu         sync.Mutex
	offers     []string
	answers    []string
	candidates []string
	sendErr    error
}

var _ ports.SignalSender = (*fakeSender)(nil)

func (f *fakeSender) SendOffer(_ domain.RoomID, offer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.offers = append(f.offers, string(offer))
	return nil
}

func (f *fakeSender) SendAnswer(_ domain.RoomID, answer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.answers = append(f.answers, string(answer))
	return nil
}

func (f *fakeSender) SendCandidate(_ domain.RoomID, candidate json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.candidates = append(f.candidates, string(candidate))
	return nil
}

func (f *fakeSender) sentOffers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.offers))
	copy(out, f.offers)
	return out
}

func (f *fakeSender) sentAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.answers))
	copy(out, f.answers)
	return out
}

func (f *fakeSender) sentCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.candidates))
	copy(out, f.candidates)
	return out
}

// fakeRelay implements ports.RelayClient on top of fakeSender with a
// test-fed event stream.
type fakeRelay struct {
	fakeSender
	id     domain.ParticipantID
	joined []domain.RoomID
	events chan ports.RelayEvent

	closeMu   sync.Mutex
	closeOnce sync.Once
}

var _ ports.RelayClient = (*fakeRelay)(nil)

func newFakeRelay(id domain.ParticipantID) *fakeRelay {
	return &fakeRelay{
		id:     id,
		events: make(chan ports.RelayEvent, 32),
	}
}

func (f *fakeRelay) ID() domain.ParticipantID { return f.id }

func (f *fakeRelay) Join(room domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, room)
	return nil
}

func (f *fakeRelay) Events() <-chan ports.RelayEvent { return f.events }

func (f *fakeRelay) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeRelay) push(event ports.RelayEvent) { f.events <- event }

func (f *fakeRelay) joinedRooms() []domain.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RoomID, len(f.joined))
	copy(out, f.joined)
	return out
}

// fakeFactory hands out pre-seeded transports in order.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	created    []*fakeTransport
}

var _ ports.TransportFactory = (*fakeFactory)(nil)

func (f *fakeFactory) NewTransport(context.Context) (ports.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t *fakeTransport
	if len(f.transports) > 0 {
		t = f.transports[0]
		f.transports = f.transports[1:]
	} else {
		t = newFakeTransport()
	}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeFactory) createdTransports() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeTransport, len(f.created))
	copy(out, f.created)
	return out
}

// fakeSource satisfies ports.MediaSource with an inert handle.
type fakeSource struct {
	handle string
	closed bool
}

func (f *fakeSource) Handle() ports.MediaTrack { return f.handle }
func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}
