package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/interviewly/meetkit/internal/audio"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrAlreadyConnected = errors.New("relay client already connected")

// Callbacks deliver session events to the owner. Errors are reported here
// rather than returned across goroutine boundaries so the owner always gets a
// chance to show user-facing feedback instead of crashing the view.
type Callbacks struct {
	// OnTranscript receives accumulated fragments (final=false) and the full
	// text of a finished response (final=true).
	OnTranscript func(text string, final bool)
	// OnSpeaking reports whether the assistant is currently producing speech.
	OnSpeaking func(speaking bool)
	// OnError surfaces session errors; the connection stays up unless the
	// socket itself dies.
	OnError func(err error)
}

// Client manages one WebSocket connection to a voice relay endpoint,
// multiplexing outgoing mic audio and incoming transcript/audio events.
// Exactly one Client lives per meeting view.
type Client struct {
	url    string
	dialer *websocket.Dialer
	source CaptureSource
	queue  *audio.PlaybackQueue
	cbs    Callbacks
	logger zerolog.Logger

	state atomic.Int32
	muted atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	// transcript accumulates fragments between delta and done events,
	// guarded by mu.
	transcript strings.Builder
}

func NewClient(url string, source CaptureSource, queue *audio.PlaybackQueue, cbs Callbacks, logger zerolog.Logger) *Client {
	return &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		source: source,
		queue:  queue,
		cbs:    cbs,
		logger: logger.With().Str("module", "relay").Logger(),
	}
}

func (c *Client) State() State { return State(c.state.Load()) }

// Muted reports whether captured frames are currently withheld.
func (c *Client) Muted() bool { return c.muted.Load() }

// Connect acquires the capture source, dials the relay, and starts the
// capture and receive loops. A capture failure (e.g. mic permission denied)
// aborts setup and is also reported through OnError.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	frames, err := c.source.Open(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		err = fmt.Errorf("open capture: %w", err)
		c.report(err)
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		_ = c.source.Close()
		c.state.Store(int32(StateDisconnected))
		err = fmt.Errorf("dial relay: %w", err)
		c.report(err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.state.Store(int32(StateConnected))
	c.logger.Info().Str("url", c.url).Msg("relay connected")

	go c.sendLoop(loopCtx, conn, frames)
	go c.readLoop(conn)
	return nil
}

// sendLoop encodes every captured frame and transmits it unless muted.
// Capture continues while muted to avoid re-acquiring the microphone.
func (c *Client) sendLoop(ctx context.Context, conn *websocket.Conn, frames <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-frames:
			if !ok {
				return
			}
			if c.muted.Load() {
				continue
			}
			frame, err := AppendAudioFrame(audio.EncodePCM16(samples))
			if err != nil {
				c.logger.Error().Err(err).Msg("marshal audio frame")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("send audio frame")
				return
			}
		}
	}
}

// readLoop dispatches inbound events strictly in socket delivery order.
// When the socket closes, locally or remotely, it performs teardown.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Disconnect()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateConnected {
				c.logger.Info().Err(err).Msg("relay socket closed")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	ev, err := ParseEvent(data)
	if err != nil {
		// Malformed or unknown frames are dropped; the session continues.
		c.logger.Warn().Err(err).Msg("dropping relay frame")
		return
	}

	switch ev := ev.(type) {
	case AudioDelta:
		c.queue.Enqueue(ev.Audio)
	case TranscriptDelta:
		c.mu.Lock()
		c.transcript.WriteString(ev.Text)
		c.mu.Unlock()
		if c.cbs.OnTranscript != nil {
			c.cbs.OnTranscript(ev.Text, false)
		}
	case TranscriptDone:
		c.mu.Lock()
		full := ev.Transcript
		if full == "" {
			full = c.transcript.String()
		}
		c.transcript.Reset()
		c.mu.Unlock()
		if c.cbs.OnTranscript != nil {
			c.cbs.OnTranscript(full, true)
		}
	case SpeechStarted:
		// The user interrupted; queued audio is left to finish naturally.
		if c.cbs.OnSpeaking != nil {
			c.cbs.OnSpeaking(false)
		}
	case ResponseCreated:
		if c.cbs.OnSpeaking != nil {
			c.cbs.OnSpeaking(true)
		}
	case AudioDone:
		c.logger.Debug().Msg("assistant audio done")
	case ErrorEvent:
		c.report(fmt.Errorf("relay error: %s", ev.Message))
	}
}

// ToggleMute flips whether captured frames are transmitted and returns the
// new muted state.
func (c *Client) ToggleMute() bool {
	for {
		old := c.muted.Load()
		if c.muted.CompareAndSwap(old, !old) {
			c.logger.Info().Bool("muted", !old).Msg("mute toggled")
			return !old
		}
	}
}

// Disconnect stops capture, clears pending playback, and closes the socket.
// It is idempotent and safe to call from any state.
func (c *Client) Disconnect() {
	if State(c.state.Swap(int32(StateDisconnected))) == StateDisconnected {
		return
	}

	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.transcript.Reset()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := c.source.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close capture source")
	}
	c.queue.Clear()
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info().Msg("relay disconnected")
}

func (c *Client) report(err error) {
	c.logger.Error().Err(err).Msg("relay session error")
	if c.cbs.OnError != nil {
		c.cbs.OnError(err)
	}
}
