// Package sfu forwards published RTP tracks to room subscribers. One Relay
// runs per published track (a session publishes audio and video separately),
// copying packets without decoding them.
package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/interviewly/meetkit/internal/core"
)

type Relay struct {
	Src *webrtc.TrackRemote

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack
	muted     bool

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		outTracks: make(map[core.SessionID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the published track and forwards them to every
// subscriber's OutTrack until the track or context dies.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("relay read RTP error, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[core.SessionID]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]core.SessionID, 0, len(snapshot))
	for dstSID, ot := range snapshot {
		if _, dead := ot.WriteRTP(pkt); dead {
			logger.Debug().Str("dst_sid", string(dstSID)).Msg("pruning dead out track")
			dirty = append(dirty, dstSID)
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sid := range dirty {
		delete(r.outTracks, sid)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.muted {
		ot.SetMuted(true)
	}
	r.outTracks[dst] = ot
}

// SetMuted gates forwarding at the source: every subscriber copy, including
// ones added later, is muted until the publisher unmutes. The peer connection
// and the relay loop keep running so unmute never renegotiates.
func (r *Relay) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
	for _, ot := range r.outTracks {
		ot.SetMuted(muted)
	}
}

// Muted reports the publisher-level mute flag.
func (r *Relay) Muted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.muted
}
