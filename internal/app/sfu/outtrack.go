package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one subscriber's copy of a published track. State transitions
// are atomic so the forwarding loop never takes the relay lock per packet.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // zero value is TrackStateOk
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

// SetMuted flips the copy between Ok and Muted. A copy already marked for
// delete stays deleted.
func (ot *OutTrack) SetMuted(muted bool) bool {
	for {
		cur := ot.state.Load()
		if TrackState(cur) == TrackStateDelete {
			return false
		}
		next := int32(TrackStateOk)
		if muted {
			next = int32(TrackStateMuted)
		}
		if ot.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// WriteRTP delivers one packet according to the copy's state. Muted copies
// swallow the packet; a write failure marks the copy for delete so the relay
// prunes it on the next pass. The second return reports whether the copy is
// now dead.
func (ot *OutTrack) WriteRTP(pkt *rtp.Packet) (delivered, dead bool) {
	switch ot.GetState() {
	case TrackStateDelete:
		return false, true
	case TrackStateMuted:
		return false, false
	}
	if err := ot.Track.WriteRTP(pkt); err != nil {
		ot.MarkDelete()
		return false, true
	}
	return true, false
}
