package vision

import (
	"context"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"go.uber.org/zap"
)

// Sampler rate-limits frame analysis: at most one in-flight detection per
// interval, dropping frames in between. Detection results are advisory and
// never feed back into connection handling.
type Sampler struct {
	detector ports.Detector
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	last     time.Time
	inFlight bool

	onDetections func([]domain.Detection)
}

// NewSampler wraps a detector. onDetections receives each non-empty result
// and may be nil, in which case results are only logged.
func NewSampler(detector ports.Detector, interval time.Duration, onDetections func([]domain.Detection), logger *zap.SugaredLogger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{
		detector:     detector,
		interval:     interval,
		logger:       logger,
		onDetections: onDetections,
	}
}

// HandleFrame is safe to call from the media read loop; eligible frames are
// analyzed on a separate goroutine and everything else returns immediately.
func (s *Sampler) HandleFrame(ctx context.Context, frame []byte) {
	s.mu.Lock()
	if s.inFlight || time.Since(s.last) < s.interval {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.last = time.Now()
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		}()

		detections, err := s.detector.Detect(ctx, frame)
		if err != nil {
			s.logger.Debugw("detection failed", "error", err)
			return
		}
		if len(detections) == 0 {
			return
		}
		s.logger.Infow("objects detected", "count", len(detections))
		if s.onDetections != nil {
			s.onDetections(detections)
		}
	}()
}
