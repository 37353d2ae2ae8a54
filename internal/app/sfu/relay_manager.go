package sfu

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
)

// trackKey identifies one published track: a session publishes at most one
// track per kind (audio, video).
type trackKey struct {
	sid  core.SessionID
	kind webrtc.RTPCodecType
}

type RelayManager struct {
	mu     sync.RWMutex
	relays map[trackKey]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[trackKey]*Relay),
	}
}

// StartRelay creates a Relay for one of the publisher's tracks and starts
// its forwarding loop. A republish of the same kind replaces the old relay.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	key := trackKey{sid: sid, kind: track.Kind()}
	logger := log.With().
		Str("module", "sfu").
		Str("sid", string(sid)).
		Str("kind", track.Kind().String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, cancel)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// AddSubscriber attaches dstSID's OutTrack to srcSID's relay of the matching
// kind.
func (m *RelayManager) AddSubscriber(srcSID, dstSID core.SessionID, kind webrtc.RTPCodecType, localTrack *webrtc.TrackLocalStaticRTP) {
	m.mu.RLock()
	relay, ok := m.relays[trackKey{sid: srcSID, kind: kind}]
	m.mu.RUnlock()
	if !ok {
		return
	}
	relay.AddOutTrack(dstSID, NewOutTrack(localTrack))
}

// MarkSubscriberDelete detaches dstSID from one of srcSID's tracks.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID, kind webrtc.RTPCodecType) {
	m.mu.RLock()
	relay, ok := m.relays[trackKey{sid: srcSID, kind: kind}]
	m.mu.RUnlock()
	if !ok {
		return
	}

	relay.mu.RLock()
	ot, ok := relay.outTracks[dstSID]
	relay.mu.RUnlock()
	if !ok {
		return
	}
	ot.MarkDelete()
}

// StopRelays stops every relay published by sid.
func (m *RelayManager) StopRelays(sid core.SessionID) {
	m.mu.Lock()
	var stopped []*Relay
	for key, relay := range m.relays {
		if key.sid == sid {
			stopped = append(stopped, relay)
			delete(m.relays, key)
		}
	}
	m.mu.Unlock()
	for _, relay := range stopped {
		relay.markAllDelete()
		if relay.cancel != nil {
			relay.cancel()
		}
	}
}

// SetPublisherMuted gates one of sid's published tracks at the forwarding
// layer. Reports whether a relay of that kind exists.
func (m *RelayManager) SetPublisherMuted(sid core.SessionID, kind webrtc.RTPCodecType, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[trackKey{sid: sid, kind: kind}]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.SetMuted(muted)
	return true
}

// HasRelay reports whether sid publishes a track of the given kind.
func (m *RelayManager) HasRelay(sid core.SessionID, kind webrtc.RTPCodecType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[trackKey{sid: sid, kind: kind}]
	return ok
}

// SrcTrack returns one of sid's published source tracks.
func (m *RelayManager) SrcTrack(sid core.SessionID, kind webrtc.RTPCodecType) (*webrtc.TrackRemote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[trackKey{sid: sid, kind: kind}]
	if !ok {
		return nil, false
	}
	return relay.Src, true
}
