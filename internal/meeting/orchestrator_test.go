package meeting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/domain"
)

type fakeRelay struct {
	connectErr  error
	connects    atomic.Int32
	disconnects atomic.Int32
	muted       atomic.Bool
}

func (r *fakeRelay) Connect(ctx context.Context) error {
	if r.connectErr != nil {
		return r.connectErr
	}
	r.connects.Add(1)
	return nil
}

func (r *fakeRelay) Disconnect() { r.disconnects.Add(1) }

func (r *fakeRelay) ToggleMute() bool {
	for {
		old := r.muted.Load()
		if r.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

type fakeRoom struct {
	joinErr error
	joins   atomic.Int32
	leaves  atomic.Int32
	muted   atomic.Bool
	hidden  atomic.Bool
}

func (r *fakeRoom) Join(ctx context.Context, roomID, userID, displayName string) error {
	if r.joinErr != nil {
		return r.joinErr
	}
	r.joins.Add(1)
	return nil
}

func (r *fakeRoom) Leave() { r.leaves.Add(1) }

func (r *fakeRoom) ToggleMute() bool {
	v := !r.muted.Load()
	r.muted.Store(v)
	return v
}

func (r *fakeRoom) ToggleVideo() bool {
	v := !r.hidden.Load()
	r.hidden.Store(v)
	return v
}

type orchFixture struct {
	store *Store
	feed  *Feed
	m     *domain.Meeting
	host  domain.User
	guest domain.User
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	s, feed := newTestStore(t)
	m, err := s.CreateMeeting(context.Background(), "host-1", "Mock interview")
	require.NoError(t, err)
	return &orchFixture{
		store: s,
		feed:  feed,
		m:     m,
		host:  domain.User{ID: "host-1", DisplayName: "Hana"},
		guest: domain.User{ID: "guest-1", DisplayName: "Gil"},
	}
}

func (f *orchFixture) enter(t *testing.T, user domain.User, relay *fakeRelay, room *fakeRoom, hooks Hooks) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(f.m.ID, user, f.store, f.feed, relay, room, hooks, zerolog.Nop())
	require.NoError(t, o.Enter(context.Background()))
	t.Cleanup(o.Leave)
	return o
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEnterConnectsBothClients(t *testing.T) {
	f := newOrchFixture(t)
	relay, room := &fakeRelay{}, &fakeRoom{}
	f.enter(t, f.host, relay, room, Hooks{})

	assert.Equal(t, int32(1), relay.connects.Load())
	assert.Equal(t, int32(1), room.joins.Load())
}

func TestEnterDegradesOnRelayFailure(t *testing.T) {
	f := newOrchFixture(t)
	relay := &fakeRelay{connectErr: errors.New("upstream down")}
	room := &fakeRoom{}
	o := f.enter(t, f.host, relay, room, Hooks{})

	assert.Equal(t, int32(1), room.joins.Load())

	// Mute still works through the room half.
	assert.True(t, o.ToggleMute())
	assert.True(t, room.muted.Load())
	assert.False(t, relay.muted.Load())
}

func TestEnterRejectsEndedMeeting(t *testing.T) {
	f := newOrchFixture(t)
	require.NoError(t, f.store.EndMeeting(context.Background(), f.m.ID, time.Now()))

	o := NewOrchestrator(f.m.ID, f.host, f.store, f.feed, &fakeRelay{}, &fakeRoom{}, Hooks{}, zerolog.Nop())
	assert.ErrorIs(t, o.Enter(context.Background()), ErrMeetingEnded)
}

func TestParticipantFeedUpdatesList(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()
	o := f.enter(t, f.host, &fakeRelay{}, &fakeRoom{}, Hooks{})

	hp, err := f.store.AddParticipant(ctx, f.m.ID, &f.host, domain.RoleHost)
	require.NoError(t, err)
	gp, err := f.store.AddParticipant(ctx, f.m.ID, &f.guest, domain.RoleGuest)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(o.Participants()) == 2 }, "participants never reached 2")

	require.NoError(t, f.store.MarkParticipantLeft(ctx, gp.ID, time.Now()))
	waitFor(t, func() bool { return len(o.Participants()) == 1 }, "departed participant not removed")
	assert.Equal(t, hp.ID, o.Participants()[0].ID)
}

func TestActiveSpeakerFallsBackToFirstJoined(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()
	o := f.enter(t, f.host, &fakeRelay{}, &fakeRoom{}, Hooks{})

	_, err := f.store.AddParticipant(ctx, f.m.ID, &f.host, domain.RoleHost)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.store.AddParticipant(ctx, f.m.ID, &f.guest, domain.RoleGuest)
	require.NoError(t, err)
	waitFor(t, func() bool { return len(o.Participants()) == 2 }, "participants never reached 2")

	// Nobody has spoken: first joined wins.
	p, ok := o.ActiveSpeaker()
	require.True(t, ok)
	assert.Equal(t, f.host.ID, p.UserID)

	o.NoteSpeaking(f.guest.ID)
	p, ok = o.ActiveSpeaker()
	require.True(t, ok)
	assert.Equal(t, f.guest.ID, p.UserID)

	// An unknown speaker falls back again.
	o.NoteSpeaking("stranger")
	p, ok = o.ActiveSpeaker()
	require.True(t, ok)
	assert.Equal(t, f.host.ID, p.UserID)
}

func TestChatFeedAppendsTranscript(t *testing.T) {
	f := newOrchFixture(t)
	got := make(chan domain.ChatMessage, 1)
	o := f.enter(t, f.host, &fakeRelay{}, &fakeRoom{}, Hooks{
		OnChat: func(m domain.ChatMessage) { got <- m },
	})

	_, err := f.store.AppendChat(context.Background(), f.m.ID, &f.guest, "ready when you are")
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, "ready when you are", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("chat hook never fired")
	}
	waitFor(t, func() bool { return len(o.Chat()) == 1 }, "transcript not appended")
}

func TestHostEndTearsDownEveryClient(t *testing.T) {
	f := newOrchFixture(t)

	hostRelay, hostRoom := &fakeRelay{}, &fakeRoom{}
	guestRelay, guestRoom := &fakeRelay{}, &fakeRoom{}
	hostEnded := make(chan struct{})
	guestEnded := make(chan struct{})

	host := f.enter(t, f.host, hostRelay, hostRoom, Hooks{OnEnded: func() { close(hostEnded) }})
	guest := f.enter(t, f.guest, guestRelay, guestRoom, Hooks{OnEnded: func() { close(guestEnded) }})

	assert.ErrorIs(t, guest.End(context.Background()), ErrNotHost)
	require.NoError(t, host.End(context.Background()))

	for name, ch := range map[string]chan struct{}{"host": hostEnded, "guest": guestEnded} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s never saw the ended event", name)
		}
	}
	assert.Equal(t, int32(1), hostRelay.disconnects.Load())
	assert.Equal(t, int32(1), hostRoom.leaves.Load())
	assert.Equal(t, int32(1), guestRelay.disconnects.Load())
	assert.Equal(t, int32(1), guestRoom.leaves.Load())
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newOrchFixture(t)
	relay, room := &fakeRelay{}, &fakeRoom{}
	o := f.enter(t, f.host, relay, room, Hooks{})

	o.Leave()
	o.Leave()

	assert.Equal(t, int32(1), relay.disconnects.Load())
	assert.Equal(t, int32(1), room.leaves.Load())
}

func TestAISpeakingIndicator(t *testing.T) {
	f := newOrchFixture(t)
	o := f.enter(t, f.host, &fakeRelay{}, &fakeRoom{}, Hooks{})

	assert.False(t, o.AISpeaking())
	o.SetAISpeaking(true)
	assert.True(t, o.AISpeaking())
	o.SetAISpeaking(false)
	assert.False(t, o.AISpeaking())
}
