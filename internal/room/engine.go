package room

import (
	"context"

	"github.com/pion/rtp"
)

// RemoteStream is one remote participant's live media stream.
type RemoteStream interface {
	ID() string
}

// LocalStream is the published camera/microphone stream. Toggling a track
// flips its enabled state in place; it never tears down and republishes.
// Close stops the underlying tracks and releases the capture devices.
type LocalStream interface {
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	AudioEnabled() bool
	VideoEnabled() bool
	Close() error
}

// Quality reports stream-quality degradation. Observational only: nothing
// here triggers reconnection or bitrate renegotiation.
type Quality struct {
	ParticipantID string
	Kind          string // "publish" or "play"
	PacketLossPct float64
}

// EngineHandlers deliver room events to the owning client.
type EngineHandlers struct {
	OnStreamAdded   func(participantID string, s RemoteStream)
	OnStreamRemoved func(participantID string)
	OnQuality       func(q Quality)
}

// Engine is the underlying conferencing engine. The production engine wraps a
// pion peer connection plus the room signaling channel; tests substitute a fake.
type Engine interface {
	SetHandlers(h EngineHandlers)
	Login(ctx context.Context, cred Credential, roomID, userID, displayName string) error
	// Publish acquires local capture and starts sending; it returns the
	// stream whose track-enabled flags the client toggles.
	Publish(ctx context.Context) (LocalStream, error)
	PlayStream(participantID string, s RemoteStream) error
	StopStream(participantID string) error
	StopPublish() error
	Logout() error
}

// MediaSource supplies encoded RTP for the local publish stream, typically
// backed by the platform's camera/microphone capture. Close releases the
// devices; it must be safe to call more than once.
type MediaSource interface {
	ReadAudio() (*rtp.Packet, error)
	ReadVideo() (*rtp.Packet, error)
	Close() error
}
