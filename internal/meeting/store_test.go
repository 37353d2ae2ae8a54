package meeting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *Feed) {
	t.Helper()
	feed := NewFeed()
	s, err := NewStore(filepath.Join(t.TempDir(), "meetkit.db"), feed, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, feed
}

func TestMeetingLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, "host-1", "Backend screen")
	require.NoError(t, err)

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backend screen", got.Title)
	assert.False(t, got.Ended())

	require.NoError(t, s.EndMeeting(ctx, m.ID, time.Now()))
	got, err = s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended())

	assert.ErrorIs(t, s.EndMeeting(ctx, m.ID, time.Now()), ErrMeetingEnded)
}

func TestGetMeetingNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetMeeting(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMeetingNotFound)
}

func TestParticipantsInJoinOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, "host-1", "t")
	require.NoError(t, err)

	host := &domain.User{ID: "host-1", DisplayName: "Hana"}
	guest := &domain.User{ID: "guest-1", DisplayName: "Gil"}
	hp, err := s.AddParticipant(ctx, m.ID, host, domain.RoleHost)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	gp, err := s.AddParticipant(ctx, m.ID, guest, domain.RoleGuest)
	require.NoError(t, err)

	list, err := s.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, hp.ID, list[0].ID)
	assert.Equal(t, gp.ID, list[1].ID)

	require.NoError(t, s.MarkParticipantLeft(ctx, hp.ID, time.Now()))
	list, err = s.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, gp.ID, list[0].ID)
}

func TestAddParticipantToEndedMeeting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, "host-1", "t")
	require.NoError(t, err)
	require.NoError(t, s.EndMeeting(ctx, m.ID, time.Now()))

	_, err = s.AddParticipant(ctx, m.ID, &domain.User{ID: "u", DisplayName: "U"}, domain.RoleGuest)
	assert.ErrorIs(t, err, ErrMeetingEnded)
}

func TestChatRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, "host-1", "t")
	require.NoError(t, err)

	u := &domain.User{ID: "u1", DisplayName: "Uma"}
	_, err = s.AppendChat(ctx, m.ID, u, "hello")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.AppendChat(ctx, m.ID, u, "world")
	require.NoError(t, err)

	msgs, err := s.ListChat(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, "world", msgs[1].Body)
}

func TestMutationsPublishChanges(t *testing.T) {
	s, feed := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, "host-1", "t")
	require.NoError(t, err)

	ch, cancel := feed.Subscribe(m.ID)
	defer cancel()

	_, err = s.AddParticipant(ctx, m.ID, &domain.User{ID: "u", DisplayName: "U"}, domain.RoleGuest)
	require.NoError(t, err)
	ev := <-ch
	assert.Equal(t, TableParticipants, ev.Table)
	assert.Equal(t, OpInsert, ev.Op)
	require.NotNil(t, ev.Participant)

	require.NoError(t, s.EndMeeting(ctx, m.ID, time.Now()))
	ev = <-ch
	assert.Equal(t, TableMeetings, ev.Table)
	assert.Equal(t, OpUpdate, ev.Op)
	require.NotNil(t, ev.Meeting)
	assert.True(t, ev.Meeting.Ended())
}
