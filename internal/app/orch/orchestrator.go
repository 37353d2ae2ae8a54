// Package orch coordinates meeting membership, signal fanout, and media
// forwarding on the server side.
package orch

import (
	"context"
	"time"

	"github.com/interviewly/meetkit/internal/app"
	"github.com/interviewly/meetkit/internal/app/sfu"
	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
)

// MeetingStore is the durable side of membership; every join and leave is
// written there so the change feed keeps clients in sync.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	AddParticipant(ctx context.Context, id domain.MeetingID, user *domain.User, role domain.ParticipantRole) (*domain.Participant, error)
	MarkParticipantLeft(ctx context.Context, id domain.ParticipantID, at time.Time) error
	EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) error
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Policy   app.Policy
	Relays   *sfu.RelayManager
	Store    MeetingStore

	// Renegotiate asks the signal adapter to push a fresh offer to sid after
	// the server attached new outgoing tracks. Set once at wiring time.
	Renegotiate func(core.SessionID)
}

// OnFrame fans a signal frame out to the sender's meeting and applies the
// backpressure policy to members whose send buffer was full.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	meetingID, _, ok := o.Registry.MeetingOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(meetingID)
	if !ok {
		return
	}

	res := room.Broadcast(sid, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfMeeting(meetingID) {
				if snap.Session == slow {
					o.KickBySID(snap.SID)
				}
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
