// Package meeting persists meetings, participants, and chat, publishes row
// changes on an in-process feed, and composes the relay and room clients into
// one orchestrated meeting view.
package meeting

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/domain"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table names carried on change events.
const (
	TableMeetings     = "meetings"
	TableParticipants = "participants"
	TableChat         = "chat_messages"
)

// Change is one row-level notification. Exactly one of Meeting, Participant,
// Chat is set, matching Table.
type Change struct {
	Table       string
	Op          Op
	MeetingID   domain.MeetingID
	Meeting     *domain.Meeting
	Participant *domain.Participant
	Chat        *domain.ChatMessage
}

// ChangeSource is what subscribers depend on; Feed implements it in-process
// and transports re-expose it remotely.
type ChangeSource interface {
	Subscribe(id domain.MeetingID) (<-chan Change, func())
}

// Feed fans row changes out to per-meeting subscribers. A slow subscriber's
// buffer overflowing drops the change for that subscriber only; the write
// itself is already durable in the store.
type Feed struct {
	mu   sync.RWMutex
	subs map[domain.MeetingID]map[int]chan Change
	next int
}

const subBuffer = 32

func NewFeed() *Feed {
	return &Feed{subs: make(map[domain.MeetingID]map[int]chan Change)}
}

// Subscribe registers for all changes of one meeting. The returned func
// cancels the subscription and closes the channel.
func (f *Feed) Subscribe(id domain.MeetingID) (<-chan Change, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs[id] == nil {
		f.subs[id] = make(map[int]chan Change)
	}
	key := f.next
	f.next++
	ch := make(chan Change, subBuffer)
	f.subs[id][key] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id][key]; ok {
			delete(f.subs[id], key)
			close(sub)
			if len(f.subs[id]) == 0 {
				delete(f.subs, id)
			}
		}
	}
	return ch, cancel
}

// Publish delivers one change to every subscriber of its meeting.
func (f *Feed) Publish(ch Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	dropped := 0
	for _, sub := range f.subs[ch.MeetingID] {
		select {
		case sub <- ch:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("module", "meeting.feed").Str("meeting", string(ch.MeetingID)).Str("table", ch.Table).Int("dropped", dropped).Msg("slow feed subscribers dropped change")
	}
}

// SubscriberCount reports active subscriptions for one meeting.
func (f *Feed) SubscriberCount(id domain.MeetingID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[id])
}
