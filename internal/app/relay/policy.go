package relay

import (
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEnvelope
	CloseChannel
)

func (a BackpressureAction) String() string {
	switch a {
	case DropEnvelope:
		return "drop"
	case CloseChannel:
		return "close"
	default:
		return "none"
	}
}

// Policy decides what happens to a channel whose send queue is full.
type Policy interface {
	OnBackPressure(uid domain.UserID, ch core.SignalConnection) BackpressureAction
}

// SimplePolicy drops the envelope and keeps the channel.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return DropEnvelope
}

// StrictPolicy disconnects slow channels; clients reconnect and rejoin.
type StrictPolicy struct{}

func (StrictPolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return CloseChannel
}

// PolicyByName resolves the configured backpressure policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return SimplePolicy{}, nil
	case "close":
		return StrictPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
