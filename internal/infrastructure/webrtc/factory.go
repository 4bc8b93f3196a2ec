package webrtc

import (
	"context"

	"streamcast/internal/core/ports"
	"streamcast/pkg/config"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Factory builds pion-backed peer transports from configured ICE servers.
type Factory struct {
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

var _ ports.TransportFactory = (*Factory)(nil)

// NewFactory maps the ICE server config into a pion configuration.
func NewFactory(cfg config.WebRTCConfig, logger *zap.SugaredLogger) *Factory {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return &Factory{
		config: webrtc.Configuration{ICEServers: servers},
		logger: logger,
	}
}

// NewTransport creates one peer connection wrapped as a ports.PeerTransport.
func (f *Factory) NewTransport(_ context.Context) (ports.PeerTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return newTransport(pc, f.logger), nil
}
