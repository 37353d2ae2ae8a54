package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Signaler is the room signaling channel: join handshake, offer/answer
// negotiation, and trickled ICE candidates.
type Signaler interface {
	Connect(ctx context.Context, cred Credential, roomID, userID, displayName string) error
	SendOffer(ctx context.Context, sdp string) (answerSDP string, err error)
	SendCandidate(ci webrtc.ICECandidateInit) error
	OnRemoteCandidate(fn func(webrtc.ICECandidateInit))
	// OnRemoteOffer receives server-initiated renegotiation offers, sent
	// when new tracks appear in the room.
	OnRemoteOffer(fn func(sdp string))
	// OnEvent receives every non-negotiation frame (participant changes,
	// chat, speaking signals, meeting lifecycle) with its raw payload.
	OnEvent(fn func(typ string, raw []byte))
	Send(v any) error
	Close() error
}

var (
	ErrSignalerClosed = errors.New("signaler closed")
	errJoinRejected   = errors.New("join rejected")
)

// WSSignaler speaks the room service's JSON-over-WebSocket protocol.
type WSSignaler struct {
	url    string
	logger zerolog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	closed      bool
	answerCh    chan string
	joinedCh    chan error
	onCandidate func(webrtc.ICECandidateInit)
	onOffer     func(sdp string)
	onEvent     func(typ string, raw []byte)
}

func NewWSSignaler(url string, logger zerolog.Logger) *WSSignaler {
	return &WSSignaler{
		url:      url,
		logger:   logger.With().Str("module", "room.signal").Logger(),
		answerCh: make(chan string, 1),
		joinedCh: make(chan error, 1),
	}
}

func (s *WSSignaler) OnRemoteCandidate(fn func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *WSSignaler) OnRemoteOffer(fn func(sdp string)) {
	s.mu.Lock()
	s.onOffer = fn
	s.mu.Unlock()
}

func (s *WSSignaler) OnEvent(fn func(typ string, raw []byte)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

func (s *WSSignaler) Connect(ctx context.Context, cred Credential, roomID, userID, displayName string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial room signal: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)

	join := struct {
		Type  string `json:"type"`
		Room  string `json:"room"`
		Token string `json:"token"`
		AppID string `json:"app_id"`
		User  string `json:"user"`
		Name  string `json:"name"`
	}{Type: "join", Room: roomID, Token: cred.Token, AppID: cred.AppID, User: userID, Name: displayName}
	if err := s.Send(join); err != nil {
		return err
	}

	select {
	case err := <-s.joinedCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return errors.New("join handshake timed out")
	}
}

func (s *WSSignaler) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info().Err(err).Msg("signal socket closed")
			return
		}
		s.handle(data)
	}
}

func (s *WSSignaler) handle(data []byte) {
	var env struct {
		Type          string `json:"type"`
		SDP           string `json:"sdp"`
		Error         string `json:"error"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().Err(err).Msg("bad signal frame, dropping")
		return
	}

	switch env.Type {
	case "joined":
		select {
		case s.joinedCh <- nil:
		default:
		}
		s.emit(env.Type, data)
	case "error":
		select {
		case s.joinedCh <- fmt.Errorf("%w: %s", errJoinRejected, env.Error):
		default:
		}
		s.emit(env.Type, data)
	case "answer":
		select {
		case s.answerCh <- env.SDP:
		default:
			s.logger.Warn().Msg("unexpected answer frame, dropping")
		}
	case "offer":
		s.mu.Lock()
		fn := s.onOffer
		s.mu.Unlock()
		if fn != nil {
			fn(env.SDP)
		}
	case "candidate":
		ci := webrtc.ICECandidateInit{Candidate: env.Candidate}
		if env.SDPMid != "" {
			mid := env.SDPMid
			ci.SDPMid = &mid
		}
		idx := env.SDPMLineIndex
		ci.SDPMLineIndex = &idx
		s.mu.Lock()
		fn := s.onCandidate
		s.mu.Unlock()
		if fn != nil {
			fn(ci)
		}
	default:
		s.emit(env.Type, data)
	}
}

func (s *WSSignaler) emit(typ string, raw []byte) {
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	if fn != nil {
		fn(typ, raw)
	}
}

func (s *WSSignaler) SendOffer(ctx context.Context, sdp string) (string, error) {
	err := s.Send(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{Type: "offer", SDP: sdp})
	if err != nil {
		return "", err
	}

	select {
	case answer := <-s.answerCh:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(15 * time.Second):
		return "", errors.New("offer negotiation timed out")
	}
}

func (s *WSSignaler) SendCandidate(ci webrtc.ICECandidateInit) error {
	msg := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{Type: "candidate", Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	return s.Send(msg)
}

func (s *WSSignaler) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return ErrSignalerClosed
	}
	return s.conn.WriteJSON(v)
}

func (s *WSSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
