package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection abstracts one peer's WebRTC connection.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources.
	Close()
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOfferAndCreateAnswer runs the answering side of a negotiation.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// CreateOfferAndGather runs the offering side of a negotiation.
	CreateOfferAndGather() (*webrtc.SessionDescription, error)
	// ApplyAnswer completes a negotiation started with CreateOfferAndGather.
	ApplyAnswer(webrtc.SessionDescription) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnClosed sets a callback for media session cleanup.
	OnClosed(func())
	// AddLocalTrack attaches a local static RTP track.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// RemoveLocalTrack detaches a previously attached sender.
	RemoveLocalTrack(sender *webrtc.RTPSender) error
}
