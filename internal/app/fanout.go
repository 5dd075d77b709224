package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// Fanout persists chat messages and routes them per recipient. The split
// is room-membership based, not online-status based: a member with a
// connection joined to the room is marked read immediately, everyone else
// gets a notification on their personal channel plus a push attempt.
type Fanout struct {
	store core.Store
	hub   *Hub
	push  core.Push
}

func NewFanout(store core.Store, hub *Hub, push core.Push) *Fanout {
	return &Fanout{store: store, hub: hub, push: push}
}

// Send persists and fans out one message. The sender must be a member of
// the persisted room; the stored read set starts as {sender}. origin is
// the sending connection: read receipts go to the sender's OTHER
// connections, the one that sent already knows.
func (f *Fanout) Send(ctx context.Context, roomID domain.RoomID, sender domain.UserID, origin domain.ConnID, content string, replyTo *domain.ReplyRef) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if roomID == "" || sender == "" || content == "" {
		return nil, fmt.Errorf("send message: %w", core.ErrInvalid)
	}
	room, err := f.store.DmRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasUser(sender) {
		return nil, fmt.Errorf("send to %s: %w", roomID, core.ErrForbidden)
	}

	now := time.Now()
	msg := &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		Room:      roomID,
		Sender:    sender,
		Content:   content,
		ReplyTo:   replyTo,
		ReadBy:    []domain.UserID{sender},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	// Live viewers get the full message immediately.
	f.hub.Publish(RoomTopic(roomID), core.Event{Name: "receive-message", Data: msg})

	for _, member := range room.Users {
		if member == sender {
			continue
		}
		if f.hub.TopicHasUser(RoomTopic(roomID), member) {
			if err := f.store.MarkMessageRead(ctx, msg.ID, member); err != nil {
				log.Error().Err(err).Str("module", "app.fanout").Str("message", string(msg.ID)).Msg("mark read")
				continue
			}
			msg.MarkRead(member)
			f.hub.PublishExcept(UserTopic(sender), origin, core.Event{Name: "messages-read", Data: map[string]any{"roomId": roomID}})
			continue
		}
		f.hub.Publish(UserTopic(member), core.Event{Name: "new-message", Data: map[string]any{"roomId": roomID, "message": msg}})
		f.push.Send(ctx, member, map[string]any{"roomId": roomID, "sender": sender, "content": content})
	}
	return msg, nil
}

// Delete soft-deletes a message: content and reactions are blanked, the
// record stays. Only the persisted sender may delete.
func (f *Fanout) Delete(ctx context.Context, id domain.MessageID, actor domain.UserID) (*domain.Message, error) {
	msg, err := f.store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Sender != actor {
		return nil, fmt.Errorf("delete %s: %w", id, core.ErrForbidden)
	}
	msg.Blank()
	msg.UpdatedAt = time.Now()
	if err := f.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	f.hub.Publish(RoomTopic(msg.Room), core.Event{Name: "message-deleted", Data: msg})
	return msg, nil
}

// Edit replaces the content of a live (non-deleted) message by its sender.
func (f *Fanout) Edit(ctx context.Context, id domain.MessageID, actor domain.UserID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("edit message: %w", core.ErrInvalid)
	}
	msg, err := f.store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, fmt.Errorf("edit %s: %w", id, core.ErrNotFound)
	}
	if msg.Sender != actor {
		return nil, fmt.Errorf("edit %s: %w", id, core.ErrForbidden)
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = time.Now()
	if err := f.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	f.hub.Publish(RoomTopic(msg.Room), core.Event{Name: "message-edited", Data: msg})
	return msg, nil
}

// React toggles the (actor, emoji) pair on the message's reaction set and
// rebroadcasts the updated set. Reacting twice is a no-op round trip.
func (f *Fanout) React(ctx context.Context, id domain.MessageID, actor domain.UserID, emoji string) (*domain.Message, error) {
	if emoji == "" {
		return nil, fmt.Errorf("react: %w", core.ErrInvalid)
	}
	msg, err := f.store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.ToggleReaction(actor, emoji)
	msg.UpdatedAt = time.Now()
	if err := f.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	f.hub.Publish(RoomTopic(msg.Room), core.Event{
		Name: "message-reacted",
		Data: map[string]any{"messageId": id, "reactions": msg.Reactions},
	})
	return msg, nil
}
