package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/capture"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler manages WebRTC peer connections. The browser publishes its
// microphone track and receives the interviewer's voice on the out track;
// the bridge and speaker connect both to the session layer.
type Handler struct {
	bridge  *Bridge
	speaker *Speaker
}

func NewHandler(bridge *Bridge, speaker *Speaker) *Handler {
	return &Handler{bridge: bridge, speaker: speaker}
}

// HandleOffer accepts an SDP offer and returns an SDP answer.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	connID := time.Now().Format("0102150405.000")

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "coach-audio", "coach")
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", connID, state.String())
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] Remote audio track received: codec=%s", connID, remote.Codec().MimeType)

		paced, perr := NewPacedWriter(outTrack)
		if perr != nil {
			log.Printf("[%s] Opus encoder error: %v", connID, perr)
			return
		}
		h.speaker.attach(paced)

		dec, derr := opus.NewDecoder(capture.SampleRate, 1)
		if derr != nil {
			log.Printf("[%s] Opus decoder error: %v", connID, derr)
			h.speaker.detach(paced)
			return
		}
		h.bridge.setConnected(true)
		go h.readMic(connID, remote, dec)

		peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			log.Printf("[%s] PeerConnection state: %s", connID, state.String())
			switch state {
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
				h.bridge.setConnected(false)
				h.speaker.detach(paced)
				_ = peerConnection.Close()
			}
		})
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// 100ms of 16kHz mono PCM16 per chunk fed to the bridge.
const pcm16kChunkBytes = 3200

// readMic decodes the remote Opus track to 16kHz PCM and feeds fixed-size
// chunks to the bridge until the track ends.
func (h *Handler) readMic(connID string, remote *webrtc.TrackRemote, dec *opus.Decoder) {
	pcmSamples := make([]int16, 1920)
	buf := make([]byte, 0, pcm16kChunkBytes*4)
	for {
		pkt, _, readErr := remote.ReadRTP()
		if readErr != nil {
			log.Printf("[%s] RTP read error: %v", connID, readErr)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, decErr := dec.Decode(pkt.Payload, pcmSamples)
		if decErr != nil {
			log.Printf("[%s] Opus decode error: %v", connID, decErr)
			continue
		}
		startLen := len(buf)
		need := n * 2
		if cap(buf)-len(buf) < need {
			tmp := make([]byte, len(buf), len(buf)+need+pcm16kChunkBytes)
			copy(tmp, buf)
			buf = tmp
		}
		buf = buf[:len(buf)+need]
		o := buf[startLen:]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(pcmSamples[i]))
		}
		for len(buf) >= pcm16kChunkBytes {
			h.bridge.Feed(buf[:pcm16kChunkBytes])
			copy(buf, buf[pcm16kChunkBytes:])
			buf = buf[:len(buf)-pcm16kChunkBytes]
		}
	}
}
