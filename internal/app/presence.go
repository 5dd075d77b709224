package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/domain"
)

// Presence tracks, per user, the set of currently open connections. An
// entry exists iff its connection set is non-empty. Both mutations are
// idempotent set operations.
type Presence struct {
	mu    sync.RWMutex
	conns map[domain.UserID]map[domain.ConnID]struct{}
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[domain.UserID]map[domain.ConnID]struct{})}
}

// MarkOnline records the connection for the user. Reports whether this
// was the user's first live connection (an offline→online transition).
func (p *Presence) MarkOnline(user domain.UserID, conn domain.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[user]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		p.conns[user] = set
	}
	set[conn] = struct{}{}
	if !ok {
		log.Info().Str("module", "app.presence").Str("user", string(user)).Msg("user online")
	}
	return !ok
}

// MarkOffline removes the connection. Reports whether the user's
// connection set emptied (an online→offline transition).
func (p *Presence) MarkOffline(user domain.UserID, conn domain.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[user]
	if !ok {
		return false
	}
	delete(set, conn)
	if len(set) > 0 {
		return false
	}
	delete(p.conns, user)
	log.Info().Str("module", "app.presence").Str("user", string(user)).Msg("user offline")
	return true
}

func (p *Presence) IsOnline(user domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[user]) > 0
}

// Online returns the full online-user-id list, sorted. The broadcast
// payload is the whole list, not a delta; update cost grows with total
// online-user count.
func (p *Presence) Online() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.UserID, 0, len(p.conns))
	for u := range p.conns {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
