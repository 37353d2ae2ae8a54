package domain

import "time"

type ChatMessageID string

type ChatMessage struct {
	ID         ChatMessageID `json:"id"`
	MeetingID  MeetingID     `json:"meeting_id"`
	SenderID   UserID        `json:"sender_id"`
	SenderName string        `json:"sender_name"`
	Body       string        `json:"body"`
	SentAt     time.Time     `json:"sent_at"`
}
