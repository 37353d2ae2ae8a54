package sfu

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/core"
)

func newLocalTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "test",
	)
	require.NoError(t, err)
	return track
}

func TestOutTrackStateGatesDelivery(t *testing.T) {
	ot := NewOutTrack(newLocalTrack(t))
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2}}

	delivered, dead := ot.WriteRTP(pkt)
	assert.True(t, delivered)
	assert.False(t, dead)

	require.True(t, ot.SetMuted(true))
	delivered, dead = ot.WriteRTP(pkt)
	assert.False(t, delivered)
	assert.False(t, dead, "muted copy stays attached")

	require.True(t, ot.SetMuted(false))
	delivered, _ = ot.WriteRTP(pkt)
	assert.True(t, delivered)

	ot.MarkDelete()
	_, dead = ot.WriteRTP(pkt)
	assert.True(t, dead)
	assert.False(t, ot.SetMuted(false), "deleted copy cannot be revived")
}

func TestRelayMuteCoversLateSubscribers(t *testing.T) {
	r := NewRelay(nil, func() {})
	first := NewOutTrack(newLocalTrack(t))
	r.AddOutTrack("sid-a", first)

	r.SetMuted(true)
	assert.True(t, r.Muted())
	assert.Equal(t, TrackStateMuted, first.GetState())

	late := NewOutTrack(newLocalTrack(t))
	r.AddOutTrack("sid-b", late)
	assert.Equal(t, TrackStateMuted, late.GetState(), "subscriber added while muted starts muted")

	r.SetMuted(false)
	assert.Equal(t, TrackStateOk, first.GetState())
	assert.Equal(t, TrackStateOk, late.GetState())
}

func TestForwardPrunesDeletedSubscribers(t *testing.T) {
	r := NewRelay(nil, func() {})
	keep := NewOutTrack(newLocalTrack(t))
	gone := NewOutTrack(newLocalTrack(t))
	r.AddOutTrack("sid-keep", keep)
	r.AddOutTrack("sid-gone", gone)
	gone.MarkDelete()

	logger := zerolog.Nop()
	r.forward(&rtp.Packet{Header: rtp.Header{Version: 2}}, &logger)

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Contains(t, r.outTracks, core.SessionID("sid-keep"))
	assert.NotContains(t, r.outTracks, core.SessionID("sid-gone"))
}

func TestManagerMuteWithoutRelay(t *testing.T) {
	m := NewRelayManager()
	assert.False(t, m.SetPublisherMuted("nobody", webrtc.RTPCodecTypeAudio, true))
}
