package webrtc

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// RemoteTrack is the concrete remote stream handle surfaced through
// ports.RemoteStream. Consumers type-assert to reach the RTP track and to
// ask the sender for a keyframe.
type RemoteTrack struct {
	pc       *webrtc.PeerConnection
	Track    *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
}

// RequestKeyframe asks the sending peer for an intra frame via a Picture
// Loss Indication.
func (rt *RemoteTrack) RequestKeyframe() error {
	return rt.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(rt.Track.SSRC())},
	})
}
