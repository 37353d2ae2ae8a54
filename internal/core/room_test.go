package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/domain"
)

type fakeSignal struct {
	sent   []Frame
	broken bool
}

func (f *fakeSignal) TrySend(fr Frame) error {
	if f.broken {
		return errors.New("backpressure")
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func member(user domain.UserID, name string) (ClientSession, *fakeSignal) {
	sig := &fakeSignal{}
	cs := NewClientSession(&domain.Participant{UserID: user, DisplayName: name, Role: domain.RoleGuest}).UpdateSignal(sig)
	return cs, sig
}

func newTestRoom() RoomService {
	return NewRoomService(&domain.Meeting{ID: "m1", HostID: "h", Title: "t"})
}

func TestBroadcastSkipsSender(t *testing.T) {
	room := newTestRoom()
	a, sigA := member("ua", "A")
	b, sigB := member("ub", "B")
	room.AddMember("sid-a", a)
	room.AddMember("sid-b", b)

	res := room.Broadcast("sid-a", Frame("hello"))

	assert.Equal(t, 1, res.SentTo)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, sigA.sent)
	require.Len(t, sigB.sent, 1)
	assert.Equal(t, Frame("hello"), sigB.sent[0])
}

func TestBroadcastReportsDropped(t *testing.T) {
	room := newTestRoom()
	a, _ := member("ua", "A")
	b, sigB := member("ub", "B")
	sigB.broken = true
	room.AddMember("sid-a", a)
	room.AddMember("sid-b", b)

	res := room.Broadcast("sid-a", Frame("x"))

	assert.Zero(t, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, b, res.Dropped[0])
}

func TestSendToMissingMember(t *testing.T) {
	room := newTestRoom()
	assert.ErrorIs(t, room.Send("ghost", Frame("x")), ErrNotMember)
}

func TestMembershipSnapshot(t *testing.T) {
	room := newTestRoom()
	a, _ := member("ua", "A")
	room.AddMember("sid-a", a)

	assert.Equal(t, 1, room.MemberCount())
	snap := room.MembersSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.UserID("ua"), snap[0].ID)

	room.RemoveMember("sid-a")
	assert.Zero(t, room.MemberCount())
}

func TestRoomManagerGetOrCreateIsStable(t *testing.T) {
	mgr := NewRoomManager()
	m := &domain.Meeting{ID: "m1", HostID: "h"}

	r1 := mgr.GetOrCreate(m)
	r2 := mgr.GetOrCreate(m)
	assert.Same(t, r1, r2)

	got, ok := mgr.Get("m1")
	require.True(t, ok)
	assert.Same(t, r1, got)

	mgr.StopRoom("m1")
	_, ok = mgr.Get("m1")
	assert.False(t, ok)
}
