package media

import (
	"fmt"
	"os"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/utils"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"go.uber.org/zap"
)

// FileSource feeds a VP8 track from an IVF file, looping when it reaches
// the end. It stands in for a live camera on headless senders.
type FileSource struct {
	path   string
	track  *webrtc.TrackLocalStaticSample
	logger *zap.SugaredLogger

	frameTime time.Duration
	done      chan struct{}
}

var _ ports.MediaSource = (*FileSource)(nil)

// NewFileSource validates the file and prepares the sample track. frameRate
// falls back to 30 when zero.
func NewFileSource(path string, frameRate int, logger *zap.SugaredLogger) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		utils.GenerateID("video"), utils.GenerateID("stream"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	if frameRate <= 0 {
		frameRate = 30
	}
	return &FileSource{
		path:      path,
		track:     track,
		logger:    logger,
		frameTime: time.Second / time.Duration(frameRate),
		done:      make(chan struct{}),
	}, nil
}

// Handle returns the shareable local track. Transports may attach it
// concurrently; pion fans samples out to every bound sender.
func (s *FileSource) Handle() ports.MediaTrack { return s.track }

// Start pumps frames until Close. It returns once the pump goroutine is
// running; read errors stop the pump and are logged.
func (s *FileSource) Start() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	reader, _, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("%w: ivf header: %v", domain.ErrMediaUnavailable, err)
	}
	go s.pump(file, reader)
	return nil
}

func (s *FileSource) pump(file *os.File, reader *ivfreader.IVFReader) {
	defer file.Close()

	ticker := time.NewTicker(s.frameTime)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if err != nil {
			// Loop the file.
			if _, err := file.Seek(0, 0); err != nil {
				s.logger.Errorw("media rewind failed", "file", s.path, "error", err)
				return
			}
			reader, _, err = ivfreader.NewWith(file)
			if err != nil {
				s.logger.Errorw("media reopen failed", "file", s.path, "error", err)
				return
			}
			continue
		}

		if err := s.track.WriteSample(media.Sample{Data: frame, Duration: s.frameTime}); err != nil {
			s.logger.Warnw("sample write failed", "error", err)
		}
	}
}

// Close stops the frame pump.
func (s *FileSource) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}
