package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/interviewly/meetkit/internal/adapters/rtc"
	"github.com/interviewly/meetkit/internal/core"
)

// qualityLossThreshold is the RTCP fraction-lost level (out of 256) above
// which a degradation report is surfaced.
const qualityLossThreshold = 25

// PionEngine implements Engine over a pion peer connection plus the room
// signaling channel.
type PionEngine struct {
	cfg      webrtc.Configuration
	signaler Signaler
	source   MediaSource
	logger   zerolog.Logger

	mu       sync.Mutex
	handlers EngineHandlers
	conn     *rtc.Connection
	cancel   context.CancelFunc
	local    *localStream
	senders  []*webrtc.RTPSender
	readers  map[string]context.CancelFunc
}

func NewPionEngine(cfg webrtc.Configuration, signaler Signaler, source MediaSource, logger zerolog.Logger) *PionEngine {
	return &PionEngine{
		cfg:      cfg,
		signaler: signaler,
		source:   source,
		logger:   logger.With().Str("module", "room.engine").Logger(),
		readers:  make(map[string]context.CancelFunc),
	}
}

func (e *PionEngine) SetHandlers(h EngineHandlers) {
	e.mu.Lock()
	e.handlers = h
	e.mu.Unlock()
}

func (e *PionEngine) Login(ctx context.Context, cred Credential, roomID, userID, displayName string) error {
	conn, err := rtc.NewConnection(e.cfg, core.SessionID(userID))
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	engCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.conn = conn
	e.cancel = cancel
	e.mu.Unlock()

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := e.signaler.SendCandidate(ci); err != nil {
			e.logger.Error().Err(err).Msg("send local candidate")
		}
	})
	e.signaler.OnRemoteCandidate(func(ci webrtc.ICECandidateInit) {
		if err := conn.AddICECandidate(ci); err != nil {
			e.logger.Error().Err(err).Msg("apply remote candidate")
		}
	})
	conn.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.handleRemoteTrack(engCtx, track)
	})
	e.signaler.OnRemoteOffer(func(sdp string) {
		answer, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
		if err != nil {
			e.logger.Error().Err(err).Msg("apply renegotiation offer")
			return
		}
		if err := e.signaler.Send(struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		}{Type: "answer", SDP: answer.SDP}); err != nil {
			e.logger.Error().Err(err).Msg("send renegotiation answer")
		}
	})

	if err := conn.Start(engCtx); err != nil {
		cancel()
		return fmt.Errorf("start peer connection: %w", err)
	}
	if err := conn.AddRecvTransceiver(webrtc.RTPCodecTypeAudio); err != nil {
		cancel()
		return err
	}
	if err := conn.AddRecvTransceiver(webrtc.RTPCodecTypeVideo); err != nil {
		cancel()
		return err
	}

	if err := e.signaler.Connect(ctx, cred, roomID, userID, displayName); err != nil {
		cancel()
		conn.Close()
		return err
	}
	return nil
}

// handleRemoteTrack announces a remote participant's stream. Only the first
// track of a stream creates a tile; additional kinds of the same stream id
// attach to the existing one.
func (e *PionEngine) handleRemoteTrack(ctx context.Context, track *webrtc.TrackRemote) {
	id := track.StreamID()
	rs := &pionRemoteStream{track: track}

	e.mu.Lock()
	_, known := e.readers[id]
	h := e.handlers
	e.mu.Unlock()
	if known {
		e.logger.Debug().Str("participant", id).Str("kind", track.Kind().String()).Msg("additional track for known stream")
		return
	}
	if h.OnStreamAdded != nil {
		h.OnStreamAdded(id, rs)
	}
}

func (e *PionEngine) Publish(ctx context.Context) (LocalStream, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil, errors.New("publish before login")
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "local",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "local",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	audioSender, err := conn.AddLocalTrack(audioTrack)
	if err != nil {
		return nil, fmt.Errorf("add audio track: %w", err)
	}
	videoSender, err := conn.AddLocalTrack(videoTrack)
	if err != nil {
		return nil, fmt.Errorf("add video track: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	ls := &localStream{source: e.source, cancel: cancel}
	ls.audioOn.Store(true)
	ls.videoOn.Store(true)

	go e.pumpTrack(streamCtx, audioTrack, ls.source.ReadAudio, &ls.audioOn)
	go e.pumpTrack(streamCtx, videoTrack, ls.source.ReadVideo, &ls.videoOn)
	go e.watchSenderQuality(streamCtx, audioSender)

	offer, err := conn.CreateOfferAndGather()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	answerSDP, err := e.signaler.SendOffer(ctx, offer.SDP)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("negotiate publish: %w", err)
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		cancel()
		return nil, fmt.Errorf("apply answer: %w", err)
	}

	e.mu.Lock()
	e.local = ls
	e.senders = []*webrtc.RTPSender{audioSender, videoSender}
	e.mu.Unlock()
	return ls, nil
}

// pumpTrack forwards RTP from the capture source. A disabled track keeps
// consuming frames but drops them, so re-enabling never renegotiates.
func (e *PionEngine) pumpTrack(ctx context.Context, track *webrtc.TrackLocalStaticRTP, read func() (*rtp.Packet, error), enabled *atomic.Bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, err := read()
		if err != nil {
			e.logger.Info().Err(err).Str("track", track.ID()).Msg("capture source drained")
			return
		}
		if !enabled.Load() {
			continue
		}
		if err := track.WriteRTP(pkt); err != nil {
			e.logger.Error().Err(err).Str("track", track.ID()).Msg("write RTP")
			return
		}
	}
}

// watchSenderQuality parses RTCP receiver reports and surfaces heavy loss.
// Observational only; no renegotiation is triggered.
func (e *PionEngine) watchSenderQuality(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, p := range pkts {
			rr, ok := p.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, rep := range rr.Reports {
				if rep.FractionLost > qualityLossThreshold {
					e.reportQuality(Quality{
						Kind:          "publish",
						PacketLossPct: float64(rep.FractionLost) / 256 * 100,
					})
				}
			}
		}
	}
}

func (e *PionEngine) reportQuality(q Quality) {
	e.mu.Lock()
	h := e.handlers
	e.mu.Unlock()
	if h.OnQuality != nil {
		h.OnQuality(q)
	}
}

func (e *PionEngine) PlayStream(participantID string, s RemoteStream) error {
	rs, ok := s.(*pionRemoteStream)
	if !ok {
		return fmt.Errorf("unexpected stream type %T", s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if old, exists := e.readers[participantID]; exists {
		old()
	}
	e.readers[participantID] = cancel
	e.mu.Unlock()

	go e.playLoop(ctx, participantID, rs.track)
	return nil
}

// playLoop drains the remote track. When the track dies the stream is
// reported as removed so the tile map stays in sync.
func (e *PionEngine) playLoop(ctx context.Context, participantID string, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := track.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			break
		}
		if _, _, err := track.ReadRTP(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			break
		}
	}

	e.mu.Lock()
	_, tracked := e.readers[participantID]
	delete(e.readers, participantID)
	h := e.handlers
	e.mu.Unlock()
	if tracked && h.OnStreamRemoved != nil {
		h.OnStreamRemoved(participantID)
	}
}

func (e *PionEngine) StopStream(participantID string) error {
	e.mu.Lock()
	cancel, ok := e.readers[participantID]
	delete(e.readers, participantID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (e *PionEngine) StopPublish() error {
	e.mu.Lock()
	conn := e.conn
	senders := e.senders
	e.senders = nil
	e.local = nil
	e.mu.Unlock()
	if conn == nil {
		return nil
	}

	var firstErr error
	for _, s := range senders {
		if err := conn.RemoveLocalTrack(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *PionEngine) Logout() error {
	e.mu.Lock()
	conn := e.conn
	cancel := e.cancel
	e.conn = nil
	e.cancel = nil
	for id, stop := range e.readers {
		stop()
		delete(e.readers, id)
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	return e.signaler.Close()
}

type pionRemoteStream struct {
	track *webrtc.TrackRemote
}

func (s *pionRemoteStream) ID() string { return s.track.StreamID() }

// localStream gates the publish pumps; Close releases capture devices.
type localStream struct {
	source  MediaSource
	cancel  context.CancelFunc
	audioOn atomic.Bool
	videoOn atomic.Bool
	closed  atomic.Bool
}

func (l *localStream) SetAudioEnabled(on bool) { l.audioOn.Store(on) }
func (l *localStream) SetVideoEnabled(on bool) { l.videoOn.Store(on) }
func (l *localStream) AudioEnabled() bool      { return l.audioOn.Load() }
func (l *localStream) VideoEnabled() bool      { return l.videoOn.Load() }

func (l *localStream) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.cancel()
	return l.source.Close()
}
