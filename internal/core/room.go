package core

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/domain"
)

var ErrNotMember = errors.New("not a member of this room")

// roomImpl is a threadsafe in-memory meeting room.
// It never closes adapter-owned resources.
type roomImpl struct {
	meeting *domain.Meeting
	mu      sync.RWMutex
	bySID   map[SessionID]ClientSession
	byUser  map[domain.UserID]SessionID
}

func NewRoomService(meeting *domain.Meeting) RoomService {
	return &roomImpl{
		meeting: meeting,
		bySID:   make(map[SessionID]ClientSession),
		byUser:  make(map[domain.UserID]SessionID),
	}
}

func (r *roomImpl) Meeting() *domain.Meeting { return r.meeting }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, cs ClientSession) {
	u := cs.Meta().UserID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = cs
	r.byUser[u] = sid
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.bySID[sid]; ok {
		u := cs.Meta().UserID
		delete(r.byUser, u)
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Send(to SessionID, data Frame) error {
	r.mu.RLock()
	cs, ok := r.bySID[to]
	r.mu.RUnlock()
	if !ok {
		return ErrNotMember
	}
	return cs.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []ParticipantDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ParticipantDTO, 0, len(r.bySID))
	for _, cs := range r.bySID {
		p := cs.Meta()
		out = append(out, ParticipantDTO{ID: p.UserID, DisplayName: p.DisplayName, Role: p.Role})
	}
	return out
}
