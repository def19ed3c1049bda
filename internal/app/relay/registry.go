package relay

import (
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps a user to every channel currently registered for it.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.UserID]map[string]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[domain.UserID]map[string]core.SignalConnection),
	}
}

// Join registers ch under uid. It reports false when ch was already there.
func (r *Registry) Join(uid domain.UserID, ch core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.channels[uid]
	if !ok {
		set = make(map[string]core.SignalConnection)
		r.channels[uid] = set
	}
	if _, ok := set[ch.ID()]; ok {
		return false
	}
	set[ch.ID()] = ch
	log.Info().Str("module", "relay").Str("user", string(uid)).Str("channel", ch.ID()).Int("channels", len(set)).Msg("joined")
	return true
}

// Leave deregisters the channel with the given id. Absent channels are ignored.
func (r *Registry) Leave(uid domain.UserID, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.channels[uid]
	if !ok {
		return false
	}
	if _, ok := set[channelID]; !ok {
		return false
	}
	delete(set, channelID)
	if len(set) == 0 {
		delete(r.channels, uid)
	}
	log.Info().Str("module", "relay").Str("user", string(uid)).Str("channel", channelID).Msg("left")
	return true
}

// LeaveAll removes every channel of uid and returns them so the caller can
// close them outside the lock.
func (r *Registry) LeaveAll(uid domain.UserID) []core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.channels[uid]
	delete(r.channels, uid)
	out := make([]core.SignalConnection, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	if len(out) > 0 {
		log.Info().Str("module", "relay").Str("user", string(uid)).Int("channels", len(out)).Msg("left all")
	}
	return out
}

// ChannelsOf returns a snapshot; sending happens without holding the lock.
func (r *Registry) ChannelsOf(uid domain.UserID) []core.SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.channels[uid]
	out := make([]core.SignalConnection, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) Count(uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[uid])
}

// Online returns the number of users with at least one channel.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
