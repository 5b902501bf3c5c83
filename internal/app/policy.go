package app

import "github.com/dkeye/Ping/internal/core"

type DeliveryAction int

const (
	NoAction DeliveryAction = iota
	KickMember
)

// Policy decides what happens to a member whose delivery failed.
type Policy interface {
	OnDeliveryFailure(f core.Failure) DeliveryAction
}

// SimplePolicy prunes on the first failed send.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(core.Failure) DeliveryAction {
	return KickMember
}

// PassivePolicy leaves removal to the session's own disconnect path.
type PassivePolicy struct{}

func (PassivePolicy) OnDeliveryFailure(core.Failure) DeliveryAction {
	return NoAction
}

func PolicyFor(pruneOnFailure bool) Policy {
	if pruneOnFailure {
		return SimplePolicy{}
	}
	return PassivePolicy{}
}
