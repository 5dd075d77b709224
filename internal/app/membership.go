package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// Membership admits connections into broadcast groups after checking the
// persisted room/server, and tracks voice-channel occupancy. Occupancy is
// keyed by user, not connection: a user in a voice channel occupies it
// once no matter how many sockets they hold.
type Membership struct {
	store core.Store
	hub   *Hub

	mu    sync.Mutex
	voice map[domain.ChannelID]map[domain.UserID]struct{}
}

func NewMembership(store core.Store, hub *Hub) *Membership {
	return &Membership{
		store: store,
		hub:   hub,
		voice: make(map[domain.ChannelID]map[domain.UserID]struct{}),
	}
}

// JoinDM admits the connection into the DM room's broadcast group, marks
// every previously-unread message read by the user and notifies the other
// participants' connections of the read transition.
func (m *Membership) JoinDM(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID) (*domain.DmRoom, error) {
	room, err := m.store.DmRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasUser(user) {
		return nil, fmt.Errorf("join dm %s: %w", roomID, core.ErrForbidden)
	}
	m.hub.Subscribe(RoomTopic(roomID), conn)

	changed, err := m.store.MarkRoomRead(ctx, roomID, user)
	if err != nil {
		return nil, fmt.Errorf("mark room read: %w", err)
	}
	if changed > 0 {
		for _, other := range room.Users {
			if other == user {
				continue
			}
			m.hub.Publish(UserTopic(other), core.Event{Name: "messages-read", Data: map[string]any{"roomId": roomID}})
		}
	}
	log.Info().Str("module", "app.membership").Str("room", string(roomID)).Str("user", string(user)).Int("read", changed).Msg("joined dm")
	return room, nil
}

// JoinChannel admits the connection into a server channel's broadcast
// group. The user must be a member or the owner of the persisted server.
func (m *Membership) JoinChannel(ctx context.Context, serverID domain.ServerID, channelID domain.ChannelID, user domain.UserID, conn domain.ConnID) error {
	srv, err := m.store.Server(ctx, serverID)
	if err != nil {
		return err
	}
	if !srv.HasMember(user) {
		return fmt.Errorf("join channel %s: %w", channelID, core.ErrForbidden)
	}
	if _, ok := srv.Channel(channelID); !ok {
		return fmt.Errorf("channel %s: %w", channelID, core.ErrNotFound)
	}
	m.hub.Subscribe(ChannelTopic(channelID), conn)
	return nil
}

// LeaveChannel removes the connection from the channel's broadcast group.
// Used when a client navigates away; no authorization needed to leave.
func (m *Membership) LeaveChannel(channelID domain.ChannelID, conn domain.ConnID) {
	m.hub.Unsubscribe(ChannelTopic(channelID), conn)
}

// LeaveRoom removes the connection from a DM room's broadcast group.
func (m *Membership) LeaveRoom(roomID domain.RoomID, conn domain.ConnID) {
	m.hub.Unsubscribe(RoomTopic(roomID), conn)
}

// JoinVoice adds the user to the channel's occupant set and returns the
// full occupant snapshot. Idempotent.
func (m *Membership) JoinVoice(channelID domain.ChannelID, user domain.UserID) []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.voice[channelID]
	if !ok {
		set = make(map[domain.UserID]struct{})
		m.voice[channelID] = set
	}
	set[user] = struct{}{}
	return occupantsLocked(set)
}

// LeaveVoice removes the user and returns the updated snapshot.
func (m *Membership) LeaveVoice(channelID domain.ChannelID, user domain.UserID) []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.voice[channelID]
	delete(set, user)
	if len(set) == 0 {
		delete(m.voice, channelID)
		return nil
	}
	return occupantsLocked(set)
}

// SweepVoice removes the user from every channel they occupy, once per
// channel, and returns the channels that actually changed. Disconnect
// cleanup calls this; re-sweeping an already-clean user returns nothing.
func (m *Membership) SweepVoice(user domain.UserID) []domain.ChannelID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept []domain.ChannelID
	for ch, set := range m.voice {
		if _, ok := set[user]; !ok {
			continue
		}
		delete(set, user)
		if len(set) == 0 {
			delete(m.voice, ch)
		}
		swept = append(swept, ch)
	}
	if len(swept) > 0 {
		log.Info().Str("module", "app.membership").Str("user", string(user)).Int("channels", len(swept)).Msg("voice sweep")
	}
	return swept
}

func (m *Membership) VoiceOccupants(channelID domain.ChannelID) []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return occupantsLocked(m.voice[channelID])
}

// ServerVoiceState returns the occupant snapshot of every voice channel of
// the server. The caller must be a member of the server.
func (m *Membership) ServerVoiceState(ctx context.Context, serverID domain.ServerID, user domain.UserID) (map[domain.ChannelID][]domain.UserID, error) {
	srv, err := m.store.Server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !srv.HasMember(user) {
		return nil, fmt.Errorf("server %s: %w", serverID, core.ErrForbidden)
	}
	out := make(map[domain.ChannelID][]domain.UserID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range srv.Channels {
		if ch.Type != domain.ChannelVoice {
			continue
		}
		out[ch.ID] = occupantsLocked(m.voice[ch.ID])
	}
	return out, nil
}

func occupantsLocked(set map[domain.UserID]struct{}) []domain.UserID {
	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
