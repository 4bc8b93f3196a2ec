package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/services"
	"streamcast/internal/infrastructure/media"
	signalrelay "streamcast/internal/infrastructure/signal"
	"streamcast/internal/infrastructure/vision"
	rtctransport "streamcast/internal/infrastructure/webrtc"
	"streamcast/pkg/config"
	rlog "streamcast/pkg/logger"
	"streamcast/pkg/retry"

	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "configs/agent.yaml", "path to config file")
		role       = flag.String("role", "", "sender or receiver (overrides config)")
		room       = flag.String("room", "", "room to join (overrides config)")
		relayURL   = flag.String("relay-url", "", "relay websocket URL (overrides config)")
		mediaFile  = flag.String("media", "", "IVF file to stream when sending (overrides config)")
	)
	flag.Parse()

	logger := rlog.New("info").Sugar()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalw("config load failed", "path", *configPath, "error", err)
	}
	logger = rlog.New(cfg.Logging.Level).Sugar()

	if *role != "" {
		cfg.Agent.Role = *role
	}
	if *room != "" {
		cfg.Agent.Room = *room
	}
	if *relayURL != "" {
		cfg.Agent.RelayURL = *relayURL
	}
	if *mediaFile != "" {
		cfg.Agent.MediaFile = *mediaFile
	}

	agentRole := services.Role(cfg.Agent.Role)
	if agentRole != services.RoleSender && agentRole != services.RoleReceiver {
		logger.Fatalw("invalid role", "role", cfg.Agent.Role)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := dialRelay(ctx, cfg, logger)

	factory := rtctransport.NewFactory(cfg.WebRTC, logger)

	var source ports.MediaSource
	if agentRole == services.RoleSender {
		fileSource, err := media.NewFileSource(cfg.Agent.MediaFile, cfg.Agent.FrameRate, logger)
		if err != nil {
			logger.Fatalw("media source unavailable", "file", cfg.Agent.MediaFile, "error", err)
		}
		if err := fileSource.Start(); err != nil {
			logger.Fatalw("media source start failed", "error", err)
		}
		source = fileSource
	}

	controller := services.NewSessionController(agentRole, domain.RoomID(cfg.Agent.Room),
		relay, factory, source, logger)

	controller.OnStatusChange(func(status domain.ConnStatus) {
		logger.Infow("connection status", "status", status)
	})

	if agentRole == services.RoleReceiver {
		wireReceiver(ctx, cfg, controller, logger)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Infow("shutting down")
		controller.Close()
		cancel()
	}()

	if err := controller.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalw("agent stopped", "error", err)
	}
}

// dialRelay connects with exponential backoff so agents survive a relay
// that is still coming up.
func dialRelay(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *signalrelay.Client {
	retryCfg := retry.DefaultConfig()
	if cfg.Agent.DialAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Agent.DialAttempts
	}

	var relay *signalrelay.Client
	err := retry.Retry(ctx, retryCfg, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Agent.DialTimeout)
		defer cancel()
		var err error
		relay, err = signalrelay.Dial(dialCtx, cfg.Agent.RelayURL, logger)
		return err
	})
	if err != nil {
		logger.Fatalw("relay unreachable", "url", cfg.Agent.RelayURL, "error", err)
	}
	logger.Infow("connected to relay", "url", cfg.Agent.RelayURL, "participant", relay.ID())
	return relay
}

// wireReceiver attaches the frame pipeline: every remote stream feeds a
// frame sink, and when vision is enabled reassembled frames are sampled
// into the detector.
func wireReceiver(ctx context.Context, cfg *config.Config, controller *services.SessionController, logger *zap.SugaredLogger) {
	var sampler *vision.Sampler
	if cfg.Agent.Vision.Enabled {
		detector := vision.NewClient(cfg.Agent.Vision.URL, logger)
		sampler = vision.NewSampler(detector, cfg.Agent.Vision.Interval, func(detections []domain.Detection) {
			for _, d := range detections {
				logger.Infow("detection",
					"label", d.Label,
					"confidence", d.Confidence,
					"x", d.Region.X,
					"y", d.Region.Y,
				)
			}
		}, logger)
	}

	sink := media.NewFrameSink(func(frame []byte) {
		if sampler != nil {
			sampler.HandleFrame(ctx, frame)
		}
	}, logger)

	controller.OnRemoteStream(func(peer domain.ParticipantID, stream ports.RemoteStream) {
		logger.Infow("remote stream attached", "peer", peer)
		go sink.Consume(ctx, stream)
	})
}
