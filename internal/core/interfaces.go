package core

import "github.com/interviewly/meetkit/internal/domain"

// Frame is a raw payload (signal JSON or audio bytes).
type Frame []byte

type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ClientSession binds a participant's meta and its transport endpoints.
// This is what a meeting room stores and fans out to.
type ClientSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) ClientSession
	UpdateMedia(MediaConnection) ClientSession
}

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ClientSession
}

// ParticipantDTO is a read-only view for APIs (no transport fields).
type ParticipantDTO struct {
	ID          domain.UserID          `json:"id"`
	DisplayName string                 `json:"display_name"`
	Role        domain.ParticipantRole `json:"role"`
}

// RoomService is the core-facing API of one live meeting room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Meeting() *domain.Meeting
	MemberCount() int
	MembersSnapshot() []ParticipantDTO

	AddMember(sid SessionID, cs ClientSession)
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
	// Send delivers to one member only; used for snapshots and replies.
	Send(to SessionID, data Frame) error
}

type RoomInfo struct {
	MeetingID   domain.MeetingID `json:"meeting_id"`
	MemberCount int              `json:"member_count"`
}

type RoomFactory interface {
	GetOrCreate(meeting *domain.Meeting) RoomService
	Get(id domain.MeetingID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.MeetingID)
}
