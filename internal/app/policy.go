package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, member *core.Member) BackpressureAction
}

// SimplePolicy closes slow connections; the drop then runs the implicit leave.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, *core.Member) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for slow members and keeps them connected.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(domain.RoomID, *core.Member) BackpressureAction {
	return DropFrame
}

// PolicyFor maps a configured back-pressure mode to a Policy.
func PolicyFor(mode string) Policy {
	if mode == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}
