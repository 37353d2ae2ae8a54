package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	o.cleanupMedia(sid)
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	if o.Relays != nil {
		o.Relays.StopRelays(sid)

		if meetingID, _, ok := o.Registry.MeetingOf(sid); ok {
			for _, snap := range o.Registry.MembersOfMeeting(meetingID) {
				o.Relays.MarkSubscriberDelete(snap.SID, sid, webrtc.RTPCodecTypeAudio)
				o.Relays.MarkSubscriberDelete(snap.SID, sid, webrtc.RTPCodecTypeVideo)
			}
		}
	}

	if sess, ok := o.Registry.GetSession(sid); ok {
		if mc := sess.Media(); mc != nil {
			mc.Close()
		}
	}
}

// OnTrack starts forwarding a newly published track and subscribes every
// other live member of the meeting to it.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	if sess, ok := o.Registry.GetSession(sid); !ok || sess.Media() == nil {
		return
	}
	o.Relays.StartRelay(ctx, sid, track)

	meetingID, _, ok := o.Registry.MeetingOf(sid)
	if !ok {
		log.Info().
			Str("module", "sfu").
			Str("sid", string(sid)).
			Msg("OnTrack: no meeting for sid")
		return
	}

	for _, snap := range o.Registry.MembersOfMeeting(meetingID) {
		if snap.SID == sid {
			continue
		}
		mc := snap.Session.Media()
		if mc == nil {
			continue
		}
		if o.subscribe(sid, snap.SID, mc, track) {
			o.renegotiate(snap.SID)
		}
	}
}

// OnMediaReady runs when a session's offer/answer exchange completes: the
// session gets subscribed to every track already published in its meeting.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	meetingID, _, ok := o.Registry.MeetingOf(sid)
	if !ok {
		return
	}

	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}

	subscribed := false
	for _, snap := range o.Registry.MembersOfMeeting(meetingID) {
		if snap.SID == sid {
			continue
		}
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			srcTrack, ok := o.Relays.SrcTrack(snap.SID, kind)
			if !ok {
				continue
			}
			if o.subscribe(snap.SID, sid, mc, srcTrack) {
				subscribed = true
			}
		}
	}
	if subscribed {
		o.renegotiate(sid)
	}
}

// subscribe clones the published track onto dst's peer connection and
// registers the copy with the relay.
func (o *Orchestrator) subscribe(srcSID, dstSID core.SessionID, mc core.MediaConnection, src *webrtc.TrackRemote) bool {
	local, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), src.StreamID())
	if err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("src", string(srcSID)).Str("dst", string(dstSID)).Msg("create local track failed")
		return false
	}
	if _, err := mc.AddLocalTrack(local); err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("src", string(srcSID)).Str("dst", string(dstSID)).Msg("attach local track failed")
		return false
	}
	o.Relays.AddSubscriber(srcSID, dstSID, src.Kind(), local)
	return true
}

func (o *Orchestrator) renegotiate(sid core.SessionID) {
	if o.Renegotiate != nil {
		o.Renegotiate(sid)
	}
}
