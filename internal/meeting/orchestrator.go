package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewly/meetkit/internal/domain"
)

var ErrNotHost = errors.New("only the host may end the meeting")

// RelaySession is the voice-relay half the orchestrator drives.
type RelaySession interface {
	Connect(ctx context.Context) error
	Disconnect()
	ToggleMute() bool
}

// RoomSession is the video-room half the orchestrator drives.
type RoomSession interface {
	Join(ctx context.Context, roomID, userID, displayName string) error
	Leave()
	ToggleMute() bool
	ToggleVideo() bool
}

// MeetingStore is the slice of Store the orchestrator needs.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	ListParticipants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error)
	ListChat(ctx context.Context, id domain.MeetingID, limit int) ([]domain.ChatMessage, error)
	EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) error
}

// Hooks notify the owning view. All hooks are optional and are invoked from
// the feed-watching goroutine.
type Hooks struct {
	OnParticipants func([]domain.Participant)
	OnChat         func(domain.ChatMessage)
	OnEnded        func()
}

// Orchestrator wires one meeting's change feed together with the relay and
// room clients so participant tiles, active-speaker highlighting, the chat
// transcript, and the AI-speaking indicator stay consistent. One instance
// per meeting view.
type Orchestrator struct {
	meetingID domain.MeetingID
	user      domain.User
	store     MeetingStore
	feed      ChangeSource
	relay     RelaySession
	room      RoomSession
	hooks     Hooks
	logger    zerolog.Logger

	mu           sync.Mutex
	entered      bool
	host         bool
	participants []domain.Participant
	chat         []domain.ChatMessage
	lastSpeaker  domain.UserID
	aiSpeaking   bool
	cancelSub    func()
	relayUp      bool
	roomUp       bool
}

func NewOrchestrator(meetingID domain.MeetingID, user domain.User, store MeetingStore, feed ChangeSource, relay RelaySession, room RoomSession, hooks Hooks, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		meetingID: meetingID,
		user:      user,
		store:     store,
		feed:      feed,
		relay:     relay,
		room:      room,
		hooks:     hooks,
		logger:    logger.With().Str("module", "meeting.orch").Str("meeting", string(meetingID)).Logger(),
	}
}

// Enter loads current state, subscribes to the change feed, and joins the
// voice relay and the video room. A relay or room failure degrades the
// session to text chat instead of failing entry.
func (o *Orchestrator) Enter(ctx context.Context) error {
	o.mu.Lock()
	if o.entered {
		o.mu.Unlock()
		return errors.New("already entered")
	}
	o.mu.Unlock()

	m, err := o.store.GetMeeting(ctx, o.meetingID)
	if err != nil {
		return fmt.Errorf("load meeting: %w", err)
	}
	if m.Ended() {
		return ErrMeetingEnded
	}

	parts, err := o.store.ListParticipants(ctx, o.meetingID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	chat, err := o.store.ListChat(ctx, o.meetingID, 0)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}

	changes, cancelSub := o.feed.Subscribe(o.meetingID)

	relayUp := true
	if err := o.relay.Connect(ctx); err != nil {
		o.logger.Error().Err(err).Msg("relay connect failed, continuing without voice")
		relayUp = false
	}
	roomUp := true
	if err := o.room.Join(ctx, string(o.meetingID), string(o.user.ID), o.user.DisplayName); err != nil {
		o.logger.Error().Err(err).Msg("room join failed, continuing without video")
		roomUp = false
	}

	o.mu.Lock()
	o.entered = true
	o.host = m.HostID == o.user.ID
	o.participants = parts
	o.chat = chat
	o.cancelSub = cancelSub
	o.relayUp = relayUp
	o.roomUp = roomUp
	o.mu.Unlock()

	go o.watch(changes)
	o.notifyParticipants()
	o.logger.Info().Bool("host", o.host).Int("participants", len(parts)).Msg("entered meeting")
	return nil
}

func (o *Orchestrator) watch(changes <-chan Change) {
	for ch := range changes {
		switch ch.Table {
		case TableParticipants:
			o.applyParticipant(ch)
		case TableChat:
			if ch.Op == OpInsert && ch.Chat != nil {
				o.mu.Lock()
				o.chat = append(o.chat, *ch.Chat)
				o.mu.Unlock()
				if o.hooks.OnChat != nil {
					o.hooks.OnChat(*ch.Chat)
				}
			}
		case TableMeetings:
			if ch.Meeting != nil && ch.Meeting.Ended() {
				o.logger.Info().Msg("meeting ended, tearing down")
				o.Leave()
				if o.hooks.OnEnded != nil {
					o.hooks.OnEnded()
				}
				return
			}
		}
	}
}

func (o *Orchestrator) applyParticipant(ch Change) {
	if ch.Participant == nil {
		return
	}
	p := *ch.Participant

	o.mu.Lock()
	switch {
	case ch.Op == OpInsert:
		o.participants = append(o.participants, p)
	case ch.Op == OpUpdate && p.LeftAt != nil, ch.Op == OpDelete:
		out := o.participants[:0]
		for _, q := range o.participants {
			if q.ID != p.ID {
				out = append(out, q)
			}
		}
		o.participants = out
		if o.lastSpeaker == p.UserID {
			o.lastSpeaker = ""
		}
	case ch.Op == OpUpdate:
		for i := range o.participants {
			if o.participants[i].ID == p.ID {
				o.participants[i] = p
			}
		}
	}
	o.mu.Unlock()
	o.notifyParticipants()
}

func (o *Orchestrator) notifyParticipants() {
	if o.hooks.OnParticipants == nil {
		return
	}
	o.hooks.OnParticipants(o.Participants())
}

// Participants returns the current list in join order.
func (o *Orchestrator) Participants() []domain.Participant {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Participant(nil), o.participants...)
}

// Chat returns the transcript so far.
func (o *Orchestrator) Chat() []domain.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.ChatMessage(nil), o.chat...)
}

// NoteSpeaking records a speaking-detection signal for a participant.
func (o *Orchestrator) NoteSpeaking(user domain.UserID) {
	o.mu.Lock()
	o.lastSpeaker = user
	o.mu.Unlock()
}

// SetAISpeaking tracks the assistant-speaking indicator; wire it to the
// relay client's OnSpeaking callback.
func (o *Orchestrator) SetAISpeaking(speaking bool) {
	o.mu.Lock()
	o.aiSpeaking = speaking
	o.mu.Unlock()
}

func (o *Orchestrator) AISpeaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aiSpeaking
}

// ActiveSpeaker picks the participant for the large tile: the most recently
// speaking participant, else the first in join order. Never empty while at
// least one participant is present.
func (o *Orchestrator) ActiveSpeaker() (domain.Participant, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.participants) == 0 {
		return domain.Participant{}, false
	}
	if o.lastSpeaker != "" {
		for _, p := range o.participants {
			if p.UserID == o.lastSpeaker {
				return p, true
			}
		}
	}
	return o.participants[0], true
}

// End closes the meeting. Host only: the write lands in the store and every
// client, including this one, tears down when the change arrives.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	host := o.host
	o.mu.Unlock()
	if !host {
		return ErrNotHost
	}
	return o.store.EndMeeting(ctx, o.meetingID, time.Now())
}

// ToggleMute flips both halves and reports the relay's resulting state.
func (o *Orchestrator) ToggleMute() bool {
	o.mu.Lock()
	relayUp, roomUp := o.relayUp, o.roomUp
	o.mu.Unlock()
	muted := false
	if relayUp {
		muted = o.relay.ToggleMute()
	}
	if roomUp {
		muted = o.room.ToggleMute()
	}
	return muted
}

func (o *Orchestrator) ToggleVideo() bool {
	o.mu.Lock()
	roomUp := o.roomUp
	o.mu.Unlock()
	if !roomUp {
		return false
	}
	return o.room.ToggleVideo()
}

// Leave disconnects both clients and unsubscribes. Idempotent; also the
// teardown path every client runs when the ended flag arrives.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	if !o.entered {
		o.mu.Unlock()
		return
	}
	o.entered = false
	cancelSub := o.cancelSub
	o.cancelSub = nil
	o.mu.Unlock()

	o.relay.Disconnect()
	o.room.Leave()
	if cancelSub != nil {
		cancelSub()
	}
	o.logger.Info().Msg("left meeting")
}
