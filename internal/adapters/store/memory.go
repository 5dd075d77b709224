// Package store provides an in-memory implementation of the persistence
// collaborator. The durable user/room/message service lives outside this
// process; this store backs the default wiring and the tests.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

type Memory struct {
	mu       sync.RWMutex
	users    map[domain.UserID]domain.User
	dmRooms  map[domain.RoomID]domain.DmRoom
	servers  map[domain.ServerID]domain.Server
	messages map[domain.MessageID]domain.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[domain.UserID]domain.User),
		dmRooms:  make(map[domain.RoomID]domain.DmRoom),
		servers:  make(map[domain.ServerID]domain.Server),
		messages: make(map[domain.MessageID]domain.Message),
	}
}

// Seed helpers for wiring and tests.

func (m *Memory) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) AddDmRoom(r domain.DmRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dmRooms[r.ID] = r
}

func (m *Memory) AddServer(s domain.Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[s.ID] = s
}

func (m *Memory) User(_ context.Context, id domain.UserID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	out := u
	return &out, nil
}

func (m *Memory) DmRoom(_ context.Context, id domain.RoomID) (*domain.DmRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.dmRooms[id]
	if !ok {
		return nil, fmt.Errorf("dm room %s: %w", id, core.ErrNotFound)
	}
	out := r
	out.Users = append([]domain.UserID(nil), r.Users...)
	return &out, nil
}

func (m *Memory) Server(_ context.Context, id domain.ServerID) (*domain.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[id]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", id, core.ErrNotFound)
	}
	out := s
	out.Members = append([]domain.UserID(nil), s.Members...)
	out.Channels = append([]domain.Channel(nil), s.Channels...)
	return &out, nil
}

func (m *Memory) CreateMessage(_ context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id: %w", core.ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (m *Memory) Message(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	out := cloneMessage(&msg)
	return &out, nil
}

func (m *Memory) UpdateMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		return fmt.Errorf("message %s: %w", msg.ID, core.ErrNotFound)
	}
	m.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (m *Memory) MarkRoomRead(_ context.Context, room domain.RoomID, user domain.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for id, msg := range m.messages {
		if msg.Room != room {
			continue
		}
		if msg.MarkRead(user) {
			m.messages[id] = msg
			changed++
		}
	}
	return changed, nil
}

func (m *Memory) MarkMessageRead(_ context.Context, id domain.MessageID, user domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	if msg.MarkRead(user) {
		m.messages[id] = msg
	}
	return nil
}

func cloneMessage(msg *domain.Message) domain.Message {
	out := *msg
	out.ReadBy = append([]domain.UserID(nil), msg.ReadBy...)
	out.Reactions = append([]domain.Reaction(nil), msg.Reactions...)
	if msg.ReplyTo != nil {
		ref := *msg.ReplyTo
		out.ReplyTo = &ref
	}
	return out
}
