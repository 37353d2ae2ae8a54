// Command client joins a meeting from the terminal: voice relay for the AI
// interviewer, the video room for other participants, and the change feed
// for chat and lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/adapters/rtc"
	"github.com/interviewly/meetkit/internal/audio"
	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
	"github.com/interviewly/meetkit/internal/relay"
	"github.com/interviewly/meetkit/internal/room"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "meeting server base URL")
		wsURL     = flag.String("ws", "ws://localhost:8080", "meeting server WebSocket base URL")
		meetingID = flag.String("meeting", "", "meeting id to join")
		userID    = flag.String("user", "", "user id")
		name      = flag.String("name", "Guest", "display name")
		mute      = flag.Bool("mute", false, "start muted")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := log.Logger

	if *meetingID == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: client -meeting <id> -user <id> [-name <name>]")
		os.Exit(2)
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Voice relay half.
	var player audio.Player
	player, err := audio.NewSpeakerPlayer()
	if err != nil {
		logger.Warn().Err(err).Msg("no speaker available, discarding assistant audio")
		player = discardPlayer{}
	}
	queue := audio.NewPlaybackQueue(player, logger)
	capture := relay.NewReaderSource(silentMic{}, audio.SampleRate/50, 20*time.Millisecond)

	relayClient := relay.NewClient(*wsURL+"/api/ws/relay", capture, queue, relay.Callbacks{
		OnTranscript: func(text string, final bool) {
			if final {
				fmt.Printf("\n[interviewer] %s\n", text)
			}
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("relay error")
		},
	}, logger)

	// Video room half.
	tokens := room.NewHTTPTokenProvider(*serverURL + "/api/rooms/token")
	signaler := room.NewWSSignaler(*wsURL+"/api/ws/rooms", logger)
	engine := room.NewPionEngine(rtc.DefaultConfig(), signaler, &silentSource{}, logger)
	roomClient := room.NewClient(tokens, engine, logger)
	roomClient.OnStreamAdded(func(id string, _ room.RemoteStream) {
		fmt.Printf("* %s turned their camera on\n", id)
	})
	roomClient.OnStreamRemoved(func(id string) {
		fmt.Printf("* %s left the stage\n", id)
	})

	// Meeting view over the REST API plus the signal-event feed.
	store := meeting.NewRemoteStore(*serverURL)
	feed := meeting.NewWireFeed(logger)
	signaler.OnEvent(func(typ string, raw []byte) {
		feed.Push(domain.MeetingID(*meetingID), typ, raw)
	})

	ended := make(chan struct{})
	orch := meeting.NewOrchestrator(
		domain.MeetingID(*meetingID),
		domain.User{ID: domain.UserID(*userID), DisplayName: *name},
		store, feed, relayClient, roomClient,
		meeting.Hooks{
			OnParticipants: func(list []domain.Participant) {
				fmt.Printf("* %d participant(s) present\n", len(list))
			},
			OnChat: func(m domain.ChatMessage) {
				fmt.Printf("[%s] %s\n", m.SenderName, m.Body)
			},
			OnEnded: func() { close(ended) },
		},
		logger,
	)

	if err := orch.Enter(ctx); err != nil {
		logger.Fatal().Err(err).Msg("could not enter meeting")
	}
	if *mute {
		orch.ToggleMute()
	}
	fmt.Println("joined; Ctrl-C to leave")

	select {
	case <-ctx.Done():
		orch.Leave()
	case <-ended:
		fmt.Println("the host ended the meeting")
	}
}

// silentMic feeds zero PCM16 samples; a real client would read the capture
// device here.
type silentMic struct{}

func (silentMic) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type discardPlayer struct{}

func (discardPlayer) Play([]byte) error { return nil }

// silentSource publishes opus silence and no video frames, enough to hold
// the publisher slot open in a headless demo.
type silentSource struct {
	seq    uint16
	ts     uint32
	closed atomic.Bool
}

var opusSilence = []byte{0xF8, 0xFF, 0xFE}

func (s *silentSource) ReadAudio() (*rtp.Packet, error) {
	if s.closed.Load() {
		return nil, errors.New("source closed")
	}
	time.Sleep(20 * time.Millisecond)
	s.seq++
	s.ts += 960
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: s.seq, Timestamp: s.ts},
		Payload: opusSilence,
	}, nil
}

func (s *silentSource) ReadVideo() (*rtp.Packet, error) {
	if s.closed.Load() {
		return nil, io.EOF
	}
	// No camera in the demo; park the pump until shutdown.
	time.Sleep(time.Second)
	return nil, io.EOF
}

func (s *silentSource) Close() error {
	s.closed.Store(true)
	return nil
}
