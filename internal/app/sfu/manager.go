// Package sfu manages per-room media-routing contexts and per-user peer
// sessions against the external media engine. It owns session lifecycle
// only; media bytes never pass through here.
package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// RemoteProducer describes an active producer of another peer, enough for
// a joining client to start consuming.
type RemoteProducer struct {
	ProducerID string        `json:"producerId"`
	Kind       string        `json:"kind"`
	User       domain.UserID `json:"userId"`
}

// JoinResult is returned to a joining peer: the router's negotiation
// capabilities plus every already-active remote producer in the room.
type JoinResult struct {
	RTPCapabilities webrtc.RTPCapabilities `json:"rtpCapabilities"`
	Producers       []RemoteProducer       `json:"producers"`
}

// ConsumeResult carries what the client needs to attach a consumer.
type ConsumeResult struct {
	ConsumerID    string               `json:"id"`
	ProducerID    string               `json:"producerId"`
	Kind          string               `json:"kind"`
	RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
}

// peer is one user's media state within a room. Transports, producers and
// consumers are exclusively owned by the peer and never shared.
type peer struct {
	user       domain.UserID
	transports map[string]core.MediaTransport
	producers  map[string]core.Producer
	consumers  map[string]core.Consumer
}

func newPeer(user domain.UserID) *peer {
	return &peer{
		user:       user,
		transports: make(map[string]core.MediaTransport),
		producers:  make(map[string]core.Producer),
		consumers:  make(map[string]core.Consumer),
	}
}

// mediaRoom is the shared routing context for one room. All mutations on
// the room's peers serialize on its mutex so unrelated rooms keep
// independent progress.
type mediaRoom struct {
	id     domain.RoomID
	router core.Router

	mu    sync.Mutex
	peers map[domain.UserID]*peer
}

// Manager owns every media room. Rooms are created lazily on first Join
// and released when the last peer session is removed.
type Manager struct {
	engine core.MediaEngine

	mu    sync.RWMutex
	rooms map[domain.RoomID]*mediaRoom
}

func NewManager(engine core.MediaEngine) *Manager {
	return &Manager{engine: engine, rooms: make(map[domain.RoomID]*mediaRoom)}
}

// ensureRoom lazily creates the shared routing context on first reference.
// The engine call runs under the room's own mutex, never the manager's,
// so a slow router creation cannot stall unrelated rooms.
func (m *Manager) ensureRoom(ctx context.Context, id domain.RoomID) (*mediaRoom, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if r, ok = m.rooms[id]; !ok {
			r = &mediaRoom{id: id, peers: make(map[domain.UserID]*peer)}
			m.rooms[id] = r
		}
		m.mu.Unlock()
	}

	r.mu.Lock()
	if r.router == nil {
		router, err := m.engine.CreateRouter(ctx)
		if err != nil {
			empty := len(r.peers) == 0
			r.mu.Unlock()
			if empty {
				m.dropIfAbandoned(id, r)
			}
			return nil, fmt.Errorf("create router: %w", core.ErrEngine)
		}
		r.router = router
		log.Info().Str("module", "sfu").Str("room", string(id)).Msg("router created")
	}
	r.mu.Unlock()
	return r, nil
}

// dropIfAbandoned removes the room entry when it never got a router and
// holds no peers. Lock order is always manager, then room.
func (m *Manager) dropIfAbandoned(id domain.RoomID, r *mediaRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[id] != r {
		return
	}
	r.mu.Lock()
	if r.router == nil && len(r.peers) == 0 {
		delete(m.rooms, id)
	}
	r.mu.Unlock()
}

func (m *Manager) room(id domain.RoomID) (*mediaRoom, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomCount reports the number of live routing contexts.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Join creates or reuses the peer session keyed by (room, user) and
// returns the router capabilities plus the active remote producers. If a
// concurrent Leave released the room mid-join, the join retries on a
// fresh routing context.
func (m *Manager) Join(ctx context.Context, roomID domain.RoomID, user domain.UserID) (*JoinResult, error) {
	for {
		r, err := m.ensureRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.router == nil {
			r.mu.Unlock()
			continue
		}
		if _, ok := r.peers[user]; !ok {
			r.peers[user] = newPeer(user)
			log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Msg("peer joined")
		}
		res := &JoinResult{
			RTPCapabilities: r.router.RTPCapabilities(),
			Producers:       []RemoteProducer{},
		}
		for _, p := range r.peers {
			if p.user == user {
				continue
			}
			for _, prod := range p.producers {
				res.Producers = append(res.Producers, RemoteProducer{
					ProducerID: prod.ID(),
					Kind:       prod.Kind().String(),
					User:       p.user,
				})
			}
		}
		r.mu.Unlock()
		if cur, ok := m.room(roomID); !ok || cur != r {
			continue
		}
		return res, nil
	}
}

// CreateTransport creates one transport scoped to the peer in the
// requested direction and returns the client handshake parameters.
func (m *Manager) CreateTransport(ctx context.Context, roomID domain.RoomID, user domain.UserID, direction core.TransportDirection) (core.TransportInfo, error) {
	if direction != core.DirectionSend && direction != core.DirectionRecv {
		return core.TransportInfo{}, fmt.Errorf("direction %q: %w", direction, core.ErrInvalid)
	}
	r, ok := m.room(roomID)
	if !ok {
		return core.TransportInfo{}, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[user]
	if !ok {
		return core.TransportInfo{}, fmt.Errorf("peer %s: %w", user, core.ErrNotFound)
	}
	t, err := r.router.CreateTransport(ctx, direction)
	if err != nil {
		return core.TransportInfo{}, fmt.Errorf("create transport: %w", core.ErrEngine)
	}
	info := t.Info()
	p.transports[info.ID] = t
	return info, nil
}

// ConnectTransport completes the handshake on a transport previously
// created by this peer.
func (m *Manager) ConnectTransport(ctx context.Context, roomID domain.RoomID, user domain.UserID, transportID string, dtls webrtc.DTLSParameters) error {
	r, ok := m.room(roomID)
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[user]
	if !ok {
		return fmt.Errorf("peer %s: %w", user, core.ErrNotFound)
	}
	t, ok := p.transports[transportID]
	if !ok {
		return fmt.Errorf("transport %s: %w", transportID, core.ErrNotFound)
	}
	if err := t.Connect(ctx, dtls); err != nil {
		return fmt.Errorf("connect transport: %w", core.ErrEngine)
	}
	return nil
}

// Produce begins an outbound track over a send-transport and registers
// the producer under the peer. The producer is registered only after the
// engine call succeeds; a failed produce leaves no half-created resource.
func (m *Manager) Produce(ctx context.Context, roomID domain.RoomID, user domain.UserID, transportID string, kind webrtc.RTPCodecType, rtp webrtc.RTPParameters) (RemoteProducer, error) {
	r, ok := m.room(roomID)
	if !ok {
		return RemoteProducer{}, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[user]
	if !ok {
		return RemoteProducer{}, fmt.Errorf("peer %s: %w", user, core.ErrNotFound)
	}
	t, ok := p.transports[transportID]
	if !ok {
		return RemoteProducer{}, fmt.Errorf("transport %s: %w", transportID, core.ErrNotFound)
	}
	if t.Info().Direction != core.DirectionSend {
		return RemoteProducer{}, fmt.Errorf("produce on %s transport: %w", t.Info().Direction, core.ErrInvalid)
	}
	prod, err := t.Produce(ctx, kind, rtp)
	if err != nil {
		return RemoteProducer{}, fmt.Errorf("produce: %w", core.ErrEngine)
	}
	p.producers[prod.ID()] = prod
	log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Str("producer", prod.ID()).Str("kind", kind.String()).Msg("producer created")
	return RemoteProducer{ProducerID: prod.ID(), Kind: prod.Kind().String(), User: user}, nil
}

// Consume verifies the router can bridge the producer to the requested
// capabilities before creating anything. The consumer starts paused so no
// initial packets are dropped ahead of the client's readiness.
func (m *Manager) Consume(ctx context.Context, roomID domain.RoomID, user domain.UserID, transportID, producerID string, caps webrtc.RTPCapabilities) (ConsumeResult, error) {
	r, ok := m.room(roomID)
	if !ok {
		return ConsumeResult{}, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[user]
	if !ok {
		return ConsumeResult{}, fmt.Errorf("peer %s: %w", user, core.ErrNotFound)
	}
	if !r.router.CanConsume(producerID, caps) {
		return ConsumeResult{}, fmt.Errorf("producer %s: %w", producerID, core.ErrCannotConsume)
	}
	t, ok := p.transports[transportID]
	if !ok {
		return ConsumeResult{}, fmt.Errorf("transport %s: %w", transportID, core.ErrNotFound)
	}
	cons, err := t.Consume(ctx, producerID, caps)
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("consume: %w", core.ErrEngine)
	}
	p.consumers[cons.ID()] = cons
	return ConsumeResult{
		ConsumerID:    cons.ID(),
		ProducerID:    producerID,
		Kind:          cons.Kind().String(),
		RTPParameters: cons.RTPParameters(),
	}, nil
}

// Resume unpauses a consumer owned by the calling peer.
func (m *Manager) Resume(ctx context.Context, roomID domain.RoomID, user domain.UserID, consumerID string) error {
	r, ok := m.room(roomID)
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[user]
	if !ok {
		return fmt.Errorf("peer %s: %w", user, core.ErrNotFound)
	}
	cons, ok := p.consumers[consumerID]
	if !ok {
		return fmt.Errorf("consumer %s: %w", consumerID, core.ErrNotFound)
	}
	if err := cons.Resume(ctx); err != nil {
		return fmt.Errorf("resume: %w", core.ErrEngine)
	}
	return nil
}

type resource interface{ Close() }

// Leave tears down all of the peer's resources in dependency order
// (consumers, then producers, then transports), closes every other
// peer's consumer of the departed producers, removes the peer session
// and releases the router when the room empties. Returns the ids of the
// producers that closed so the signal layer can notify their consumers.
// Idempotent: leaving an unknown room or peer is a no-op. All engine
// Close calls run outside the locks.
func (m *Manager) Leave(roomID domain.RoomID, user domain.UserID) []string {
	r, ok := m.room(roomID)
	if !ok {
		return nil
	}

	var toClose []resource
	var closedProducers []string
	r.mu.Lock()
	p, ok := r.peers[user]
	if ok {
		closed := make(map[string]struct{}, len(p.producers))
		for id := range p.producers {
			closed[id] = struct{}{}
			closedProducers = append(closedProducers, id)
		}
		for _, c := range p.consumers {
			toClose = append(toClose, c)
		}
		// Consumers of the departed producers held by the remaining peers
		// die with their producer.
		for _, other := range r.peers {
			if other.user == user {
				continue
			}
			for id, c := range other.consumers {
				if _, gone := closed[c.ProducerID()]; gone {
					delete(other.consumers, id)
					toClose = append(toClose, c)
				}
			}
		}
		for _, prod := range p.producers {
			toClose = append(toClose, prod)
		}
		for _, t := range p.transports {
			toClose = append(toClose, t)
		}
		delete(r.peers, user)
		log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Msg("peer left")
	}
	r.mu.Unlock()

	for _, res := range toClose {
		res.Close()
	}

	// Release the router when the room emptied. Both locks, manager
	// first, so the check and the map removal are one atomic step.
	var router core.Router
	m.mu.Lock()
	if m.rooms[roomID] == r {
		r.mu.Lock()
		if len(r.peers) == 0 {
			delete(m.rooms, roomID)
			router = r.router
		}
		r.mu.Unlock()
	}
	m.mu.Unlock()
	if router != nil {
		router.Close()
		log.Info().Str("module", "sfu").Str("room", string(roomID)).Msg("router released")
	}
	return closedProducers
}
