package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
)

// Join adds a connected session to a meeting: a durable participant row plus
// live room membership. Joining while already in a meeting kicks first.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, meetingID domain.MeetingID, user *domain.User) (*domain.Participant, error) {
	if prev, _, ok := o.Registry.MeetingOf(sid); ok {
		o.KickBySID(sid)
		log.Info().Str("sid", string(sid)).Str("from_meeting", string(prev)).Msg("kicked from previous meeting")
	}

	m, err := o.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Ended() {
		return nil, meeting.ErrMeetingEnded
	}

	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, core.ErrNotMember
	}

	role := domain.RoleGuest
	if m.HostID == user.ID {
		role = domain.RoleHost
	}
	p, err := o.Store.AddParticipant(ctx, meetingID, user, role)
	if err != nil {
		return nil, err
	}

	// Sessions are created with an empty participant; fill it in place so
	// every holder of the pointer sees the join.
	*session.Meta() = *p

	room := o.Rooms.GetOrCreate(m)
	room.AddMember(sid, session)
	o.Registry.UpdateMeeting(sid, meetingID)
	log.Info().Str("sid", string(sid)).Str("meeting", string(meetingID)).Str("role", string(role)).Msg("joined meeting")
	return p, nil
}

// KickBySID removes a session from its meeting: media first, then room
// membership, then the durable left_at mark.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMedia(sid)
	o.cleanupMembership(sid)
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) {
	meetingID, _, ok := o.Registry.MeetingOf(sid)
	if !ok {
		return
	}
	if room, ok := o.Rooms.Get(meetingID); ok {
		room.RemoveMember(sid)
		if room.MemberCount() == 0 {
			o.Rooms.StopRoom(meetingID)
		}
	}
	o.Registry.RemoveMeeting(sid)

	if sess, ok := o.Registry.GetSession(sid); ok {
		if meta := sess.Meta(); meta != nil && meta.ID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.Store.MarkParticipantLeft(ctx, meta.ID, time.Now()); err != nil {
				log.Error().Err(err).Str("sid", string(sid)).Msg("mark participant left failed")
			}
		}
	}
}

// EndMeeting is the host's close button. The store write feeds the change
// feed; EvictMeeting then tears down every live session.
func (o *Orchestrator) EndMeeting(ctx context.Context, sid core.SessionID) error {
	meetingID, sess, ok := o.Registry.MeetingOf(sid)
	if !ok {
		return core.ErrNotMember
	}
	if meta := sess.Meta(); meta == nil || !meta.IsHost() {
		return meeting.ErrNotHost
	}
	if err := o.Store.EndMeeting(ctx, meetingID, time.Now()); err != nil {
		return err
	}
	o.EvictMeeting(meetingID)
	return nil
}

// EvictMeeting kicks every live session of a meeting and stops its room.
func (o *Orchestrator) EvictMeeting(id domain.MeetingID) {
	for _, snap := range o.Registry.MembersOfMeeting(id) {
		o.KickBySID(snap.SID)
	}
	o.Rooms.StopRoom(id)
}
