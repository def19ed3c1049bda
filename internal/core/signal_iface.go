package core

import (
	"context"

	"github.com/dkeye/voicecall/internal/domain"
)

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts one registered channel of a user (a device tab,
// a CLI process). Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() string
	TrySend(Frame) error
	Close()
}

// Signaler is the client-side view of the relay.
type Signaler interface {
	Send(ctx context.Context, env domain.Envelope) error
	// Subscribe returns inbound envelopes addressed to the local user.
	Subscribe() (<-chan domain.Envelope, func())
}
