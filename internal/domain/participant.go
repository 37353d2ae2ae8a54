package domain

import "time"

type ParticipantRole string

const (
	RoleHost  ParticipantRole = "host"
	RoleGuest ParticipantRole = "guest"
)

type ParticipantID string

// Participant represents a user's membership in one meeting.
// No transport or lifecycle logic here.
type Participant struct {
	ID          ParticipantID   `json:"id"`
	MeetingID   MeetingID       `json:"meeting_id"`
	UserID      UserID          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Role        ParticipantRole `json:"role"`
	JoinedAt    time.Time       `json:"joined_at"`
	LeftAt      *time.Time      `json:"left_at,omitempty"`
}

func (p *Participant) IsHost() bool { return p.Role == RoleHost }
