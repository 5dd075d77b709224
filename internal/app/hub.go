package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// Topic is a broadcast group key: a room, or a user's personal channel.
type Topic string

func RoomTopic(id domain.RoomID) Topic       { return Topic("room:" + id) }
func ChannelTopic(id domain.ChannelID) Topic { return Topic("room:" + id) }
func UserTopic(id domain.UserID) Topic       { return Topic("user:" + id) }

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	Sent    int
	Dropped []domain.ConnID
}

// Hub owns the set of live sessions and their topic subscriptions. It is
// the single fan-out primitive: everything a client receives goes through
// Publish, PublishExcept or Broadcast. The hub never closes adapter-owned
// transports; it only reports connections it could not deliver to.
type Hub struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]core.ClientSession
	topics   map[Topic]map[domain.ConnID]struct{}
	byConn   map[domain.ConnID]map[Topic]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[domain.ConnID]core.ClientSession),
		topics:   make(map[Topic]map[domain.ConnID]struct{}),
		byConn:   make(map[domain.ConnID]map[Topic]struct{}),
	}
}

func (h *Hub) Register(cs core.ClientSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[cs.ID()] = cs
	log.Info().Str("module", "app.hub").Str("conn", string(cs.ID())).Str("user", string(cs.User())).Msg("session registered")
}

// Drop removes the session and every subscription it held. Safe to call
// more than once.
func (h *Hub) Drop(id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := range h.byConn[id] {
		delete(h.topics[t], id)
		if len(h.topics[t]) == 0 {
			delete(h.topics, t)
		}
	}
	delete(h.byConn, id)
	delete(h.sessions, id)
	log.Info().Str("module", "app.hub").Str("conn", string(id)).Msg("session dropped")
}

func (h *Hub) Subscribe(t Topic, id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; !ok {
		return
	}
	if h.topics[t] == nil {
		h.topics[t] = make(map[domain.ConnID]struct{})
	}
	h.topics[t][id] = struct{}{}
	if h.byConn[id] == nil {
		h.byConn[id] = make(map[Topic]struct{})
	}
	h.byConn[id][t] = struct{}{}
}

func (h *Hub) Unsubscribe(t Topic, id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[t], id)
	if len(h.topics[t]) == 0 {
		delete(h.topics, t)
	}
	delete(h.byConn[id], t)
}

func (h *Hub) Session(id domain.ConnID) (core.ClientSession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cs, ok := h.sessions[id]
	return cs, ok
}

// TopicHasUser reports whether any of the user's connections is currently
// subscribed to the topic. This is the read/delivered pivot: being online
// does not imply viewing the room.
func (h *Hub) TopicHasUser(t Topic, user domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.topics[t] {
		if cs, ok := h.sessions[id]; ok && cs.User() == user {
			return true
		}
	}
	return false
}

// Publish sends the event to every connection subscribed to the topic.
func (h *Hub) Publish(t Topic, ev core.Event) PublishResult {
	return h.publish(t, "", ev)
}

// PublishExcept sends the event to every subscribed connection but from.
func (h *Hub) PublishExcept(t Topic, from domain.ConnID, ev core.Event) PublishResult {
	return h.publish(t, from, ev)
}

func (h *Hub) publish(t Topic, from domain.ConnID, ev core.Event) PublishResult {
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", ev.Name).Msg("marshal event")
		return PublishResult{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for id := range h.topics[t] {
		if id == from {
			continue
		}
		cs, ok := h.sessions[id]
		if !ok {
			continue
		}
		if err := cs.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.Sent++
	}
	log.Debug().Str("module", "app.hub").Str("topic", string(t)).Str("event", ev.Name).Int("sent", res.Sent).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}

// Broadcast sends the event to every registered connection.
func (h *Hub) Broadcast(ev core.Event) PublishResult {
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", ev.Name).Msg("marshal event")
		return PublishResult{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for id, cs := range h.sessions {
		if err := cs.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.Sent++
	}
	return res
}
