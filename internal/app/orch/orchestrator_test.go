package orch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/app"
	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
)

type memStore struct {
	meetings map[domain.MeetingID]*domain.Meeting
	left     []domain.ParticipantID
}

func newMemStore() *memStore {
	return &memStore{meetings: make(map[domain.MeetingID]*domain.Meeting)}
}

func (s *memStore) GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok {
		return nil, meeting.ErrMeetingNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) AddParticipant(ctx context.Context, id domain.MeetingID, user *domain.User, role domain.ParticipantRole) (*domain.Participant, error) {
	return &domain.Participant{
		ID:          domain.ParticipantID("p-" + string(user.ID)),
		MeetingID:   id,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        role,
		JoinedAt:    time.Now(),
	}, nil
}

func (s *memStore) MarkParticipantLeft(ctx context.Context, id domain.ParticipantID, at time.Time) error {
	s.left = append(s.left, id)
	return nil
}

func (s *memStore) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) error {
	m, ok := s.meetings[id]
	if !ok {
		return meeting.ErrMeetingNotFound
	}
	if m.Ended() {
		return meeting.ErrMeetingEnded
	}
	m.EndedAt = &at
	return nil
}

type stubSignal struct {
	frames []core.Frame
	broken bool
}

func (s *stubSignal) TrySend(f core.Frame) error {
	if s.broken {
		return errors.New("backpressure")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *stubSignal) Close() {}

func newOrch(t *testing.T) (*Orchestrator, *memStore) {
	t.Helper()
	store := newMemStore()
	store.meetings["m1"] = &domain.Meeting{ID: "m1", HostID: "host-1", Title: "screen"}
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Store:    store,
	}, store
}

func bind(o *Orchestrator, sid core.SessionID) *stubSignal {
	sig := &stubSignal{}
	sess := core.NewClientSession(&domain.Participant{}).UpdateSignal(sig)
	o.Registry.BindSignal(sid, sess, func() {})
	return sig
}

func TestJoinBindsSessionToMeeting(t *testing.T) {
	o, _ := newOrch(t)
	bind(o, "sid-1")

	p, err := o.Join(context.Background(), "sid-1", "m1", &domain.User{ID: "host-1", DisplayName: "Hana"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, p.Role)

	id, sess, ok := o.Registry.MeetingOf("sid-1")
	require.True(t, ok)
	assert.Equal(t, domain.MeetingID("m1"), id)
	assert.Equal(t, domain.UserID("host-1"), sess.Meta().UserID)

	room, ok := o.Rooms.Get("m1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestJoinRejectsEndedMeeting(t *testing.T) {
	o, store := newOrch(t)
	bind(o, "sid-1")
	now := time.Now()
	store.meetings["m1"].EndedAt = &now

	_, err := o.Join(context.Background(), "sid-1", "m1", &domain.User{ID: "u", DisplayName: "U"})
	assert.ErrorIs(t, err, meeting.ErrMeetingEnded)
}

func TestOnFrameBroadcastsToMeeting(t *testing.T) {
	o, _ := newOrch(t)
	bind(o, "sid-1")
	sig2 := bind(o, "sid-2")
	_, err := o.Join(context.Background(), "sid-1", "m1", &domain.User{ID: "host-1", DisplayName: "H"})
	require.NoError(t, err)
	_, err = o.Join(context.Background(), "sid-2", "m1", &domain.User{ID: "guest-1", DisplayName: "G"})
	require.NoError(t, err)

	o.OnFrame("sid-1", core.Frame("hello"))

	require.Len(t, sig2.frames, 1)
	assert.Equal(t, core.Frame("hello"), sig2.frames[0])
}

func TestOnFrameKicksBackpressuredMember(t *testing.T) {
	o, store := newOrch(t)
	bind(o, "sid-1")
	sig2 := bind(o, "sid-2")
	_, err := o.Join(context.Background(), "sid-1", "m1", &domain.User{ID: "host-1", DisplayName: "H"})
	require.NoError(t, err)
	_, err = o.Join(context.Background(), "sid-2", "m1", &domain.User{ID: "guest-1", DisplayName: "G"})
	require.NoError(t, err)
	sig2.broken = true

	o.OnFrame("sid-1", core.Frame("x"))

	_, _, ok := o.Registry.MeetingOf("sid-2")
	assert.False(t, ok, "slow member should be kicked")
	assert.Contains(t, store.left, domain.ParticipantID("p-guest-1"))
}

func TestEndMeetingHostOnly(t *testing.T) {
	o, store := newOrch(t)
	bind(o, "sid-1")
	bind(o, "sid-2")
	_, err := o.Join(context.Background(), "sid-1", "m1", &domain.User{ID: "host-1", DisplayName: "H"})
	require.NoError(t, err)
	_, err = o.Join(context.Background(), "sid-2", "m1", &domain.User{ID: "guest-1", DisplayName: "G"})
	require.NoError(t, err)

	assert.ErrorIs(t, o.EndMeeting(context.Background(), "sid-2"), meeting.ErrNotHost)
	require.NoError(t, o.EndMeeting(context.Background(), "sid-1"))

	assert.True(t, store.meetings["m1"].Ended())
	_, _, ok := o.Registry.MeetingOf("sid-1")
	assert.False(t, ok)
	_, ok = o.Rooms.Get("m1")
	assert.False(t, ok)
}

func TestKickIsSafeWithoutMeeting(t *testing.T) {
	o, _ := newOrch(t)
	bind(o, "sid-1")
	o.KickBySID("sid-1")
}
