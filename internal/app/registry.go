package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
)

type sessionEntry struct {
	MeetingID domain.MeetingID
	Session   core.ClientSession
	Cancel    context.CancelFunc
}

// Registry tracks which connected session belongs to which meeting. It is
// the server-side source of truth for sid lookups; durable participant state
// lives in the meeting store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// BindSignal registers a freshly connected session before it joins a meeting.
func (r *Registry) BindSignal(sid core.SessionID, sess core.ClientSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// MeetingOf returns the meeting sid has joined, if any.
func (r *Registry) MeetingOf(sid core.SessionID) (domain.MeetingID, core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.MeetingID == "" {
		return "", nil, false
	}
	return entry.MeetingID, entry.Session, true
}

func (r *Registry) UpdateMeeting(sid core.SessionID, id domain.MeetingID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.MeetingID = id
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("meeting", string(id)).Msg("updated meeting")
	return true
}

func (r *Registry) RemoveMeeting(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.MeetingID = ""
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed meeting association")
}

type regSnap struct {
	SID     core.SessionID
	Session core.ClientSession
}

func (r *Registry) MembersOfMeeting(id domain.MeetingID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.MeetingID == id {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
