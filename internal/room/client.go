package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var ErrAlreadyJoined = errors.New("room client already joined")

// Client manages one room membership. The participant → stream mapping is the
// single source of truth for which remote tiles exist: an identifier is
// present if and only if that participant currently has an active published
// stream. Exactly one Client lives per meeting view.
type Client struct {
	tokens TokenProvider
	engine Engine
	logger zerolog.Logger

	onAdded   func(participantID string, s RemoteStream)
	onRemoved func(participantID string)

	mu       sync.Mutex
	joined   bool
	roomID   string
	userID   string
	local    LocalStream
	remotes  map[string]RemoteStream
	muted    bool
	videoOff bool
}

func NewClient(tokens TokenProvider, engine Engine, logger zerolog.Logger) *Client {
	return &Client{
		tokens:  tokens,
		engine:  engine,
		logger:  logger.With().Str("module", "room").Logger(),
		remotes: make(map[string]RemoteStream),
	}
}

// OnStreamAdded registers the remote-tile callback. Set before Join.
func (c *Client) OnStreamAdded(fn func(participantID string, s RemoteStream)) {
	c.onAdded = fn
}

// OnStreamRemoved registers the remote-tile removal callback. Set before Join.
func (c *Client) OnStreamRemoved(fn func(participantID string)) {
	c.onRemoved = fn
}

// Join obtains a room-entry credential, logs into the room, and immediately
// publishes the local audio+video stream. On any failure no partial state is
// left behind; the caller may degrade to audio-only or text chat.
func (c *Client) Join(ctx context.Context, roomID, userID, displayName string) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.mu.Unlock()

	cred, err := c.tokens.RoomToken(ctx, userID, roomID)
	if err != nil {
		return fmt.Errorf("issue room token: %w", err)
	}

	c.engine.SetHandlers(EngineHandlers{
		OnStreamAdded:   c.handleStreamAdded,
		OnStreamRemoved: c.handleStreamRemoved,
		OnQuality:       c.handleQuality,
	})

	if err := c.engine.Login(ctx, cred, roomID, userID, displayName); err != nil {
		c.engine.SetHandlers(EngineHandlers{})
		return fmt.Errorf("room login: %w", err)
	}

	local, err := c.engine.Publish(ctx)
	if err != nil {
		if lerr := c.engine.Logout(); lerr != nil {
			c.logger.Error().Err(lerr).Msg("logout after failed publish")
		}
		c.engine.SetHandlers(EngineHandlers{})
		return fmt.Errorf("publish local stream: %w", err)
	}

	c.mu.Lock()
	c.joined = true
	c.roomID = roomID
	c.userID = userID
	c.local = local
	c.muted = false
	c.videoOff = false
	c.mu.Unlock()

	c.logger.Info().Str("room", roomID).Str("user", userID).Msg("joined room")
	return nil
}

func (c *Client) handleStreamAdded(participantID string, s RemoteStream) {
	c.mu.Lock()
	c.remotes[participantID] = s
	c.mu.Unlock()

	if err := c.engine.PlayStream(participantID, s); err != nil {
		c.logger.Error().Err(err).Str("participant", participantID).Msg("play remote stream")
	}
	if c.onAdded != nil {
		c.onAdded(participantID, s)
	}
}

func (c *Client) handleStreamRemoved(participantID string) {
	c.mu.Lock()
	_, present := c.remotes[participantID]
	delete(c.remotes, participantID)
	c.mu.Unlock()
	if !present {
		return
	}

	if err := c.engine.StopStream(participantID); err != nil {
		c.logger.Error().Err(err).Str("participant", participantID).Msg("stop remote stream")
	}
	if c.onRemoved != nil {
		c.onRemoved(participantID)
	}
}

// handleQuality logs degradation reports; no corrective action is taken.
func (c *Client) handleQuality(q Quality) {
	c.logger.Warn().
		Str("kind", q.Kind).
		Str("participant", q.ParticipantID).
		Float64("packet_loss_pct", q.PacketLossPct).
		Msg("stream quality degraded")
}

// Streams returns a snapshot of the remote participant → stream mapping.
func (c *Client) Streams() map[string]RemoteStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]RemoteStream, len(c.remotes))
	for id, s := range c.remotes {
		out[id] = s
	}
	return out
}

// ToggleMute flips the local audio track's enabled state and returns the new
// muted state. The stream is never republished.
func (c *Client) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	if c.local != nil {
		c.local.SetAudioEnabled(!c.muted)
	}
	return c.muted
}

// ToggleVideo flips the local video track's enabled state and returns the new
// video-off state.
func (c *Client) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOff = !c.videoOff
	if c.local != nil {
		c.local.SetVideoEnabled(!c.videoOff)
	}
	return c.videoOff
}

// Leave tears down the membership: stop publishing, release capture devices,
// stop remote playback, log out, detach handlers. Each step's failure is
// logged individually so one failing step never prevents the rest. Safe to
// call more than once.
func (c *Client) Leave() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	c.joined = false
	local := c.local
	c.local = nil
	remotes := c.remotes
	c.remotes = make(map[string]RemoteStream)
	roomID := c.roomID
	c.mu.Unlock()

	if err := c.engine.StopPublish(); err != nil {
		c.logger.Error().Err(err).Msg("stop publish")
	}
	if local != nil {
		if err := local.Close(); err != nil {
			c.logger.Error().Err(err).Msg("release local media")
		}
	}
	for id := range remotes {
		if err := c.engine.StopStream(id); err != nil {
			c.logger.Error().Err(err).Str("participant", id).Msg("stop remote stream")
		}
	}
	if err := c.engine.Logout(); err != nil {
		c.logger.Error().Err(err).Msg("room logout")
	}
	c.engine.SetHandlers(EngineHandlers{})
	c.logger.Info().Str("room", roomID).Msg("left room")
}
