package app

import "github.com/interviewly/meetkit/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a session whose signal channel backs up
// during a broadcast.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.ClientSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.ClientSession) BackpressureAction {
	return KickMember
}
