package domain

import "time"

type MeetingID string

type Meeting struct {
	ID        MeetingID  `json:"id"`
	HostID    UserID     `json:"host_id"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Ended reports whether the host has closed the meeting.
// Every client observing EndedAt through the change feed must tear down
// its own relay/room sessions, not just the host's.
func (m *Meeting) Ended() bool {
	return m.EndedAt != nil
}
