package media

import (
	"context"
	"errors"
	"io"
	"time"

	"streamcast/internal/core/ports"
	rtctransport "streamcast/internal/infrastructure/webrtc"
	"streamcast/pkg/optimize"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	// Room for an MTU-sized RTP packet.
	packetBufferSize = 1500

	keyframeInterval = 3 * time.Second
)

// FrameSink reassembles VP8 frames from a remote track's RTP stream and
// hands each complete frame to a callback. It periodically asks the sender
// for a keyframe so late joiners and lossy paths recover.
type FrameSink struct {
	logger  *zap.SugaredLogger
	pool    *optimize.BytePool
	onFrame func([]byte)
}

// NewFrameSink creates a sink delivering reassembled frames to onFrame.
// The callback runs on the sink's read goroutine and must not block long.
func NewFrameSink(onFrame func([]byte), logger *zap.SugaredLogger) *FrameSink {
	return &FrameSink{
		logger:  logger,
		pool:    optimize.NewBytePool(packetBufferSize),
		onFrame: onFrame,
	}
}

// Consume reads the stream until the track ends or ctx is cancelled. Only
// VP8 video tracks are consumed; anything else returns immediately.
func (fs *FrameSink) Consume(ctx context.Context, stream ports.RemoteStream) {
	remote, ok := stream.(*rtctransport.RemoteTrack)
	if !ok {
		fs.logger.Warnw("unsupported remote stream", "stream", stream)
		return
	}
	if remote.Track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go fs.keyframeLoop(ctx, remote, stop)

	depacketizer := &codecs.VP8Packet{}
	var frame []byte

	for {
		if ctx.Err() != nil {
			return
		}

		buf := fs.pool.Get()
		n, _, err := remote.Track.Read(buf)
		if err != nil {
			fs.pool.Put(buf)
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				fs.logger.Warnw("track read failed", "error", err)
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			fs.pool.Put(buf)
			fs.logger.Warnw("rtp unmarshal failed", "error", err)
			continue
		}

		payload, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil {
			fs.pool.Put(buf)
			fs.logger.Debugw("vp8 depacketize failed", "error", err)
			continue
		}
		// payload aliases buf, copy before the buffer goes back.
		frame = append(frame, payload...)
		fs.pool.Put(buf)

		if pkt.Marker {
			complete := make([]byte, len(frame))
			copy(complete, frame)
			frame = frame[:0]
			fs.onFrame(complete)
		}
	}
}

func (fs *FrameSink) keyframeLoop(ctx context.Context, remote *rtctransport.RemoteTrack, stop <-chan struct{}) {
	if err := remote.RequestKeyframe(); err != nil {
		fs.logger.Debugw("keyframe request failed", "error", err)
	}
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := remote.RequestKeyframe(); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
