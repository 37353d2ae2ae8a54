package core

import (
	"sync"

	"github.com/interviewly/meetkit/internal/domain"
)

type roomManager struct {
	mu    sync.RWMutex
	rooms map[domain.MeetingID]RoomService
}

func NewRoomManager() RoomFactory {
	return &roomManager{rooms: make(map[domain.MeetingID]RoomService)}
}

func (m *roomManager) GetOrCreate(meeting *domain.Meeting) RoomService {
	m.mu.RLock()
	room, ok := m.rooms[meeting.ID]
	m.mu.RUnlock()
	if ok {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[meeting.ID]; !ok {
		room = NewRoomService(meeting)
		m.rooms[meeting.ID] = room
	}
	return room
}

func (m *roomManager) Get(id domain.MeetingID) (RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *roomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{MeetingID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (m *roomManager) StopRoom(id domain.MeetingID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
}
