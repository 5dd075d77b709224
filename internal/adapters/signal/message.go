package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexora-app/pulse/internal/app"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

func (ctl *Controller) handleSendMessage(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		RoomID   domain.RoomID    `json:"roomId"`
		SenderID domain.UserID    `json:"senderId"`
		Content  string           `json:"content"`
		ReplyTo  *domain.ReplyRef `json:"replyTo"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("send-message payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.SenderID); err != nil {
		return nil, err
	}
	if !ctl.SendLimiter.Allow(sess.user) {
		return nil, core.ErrRateLimited
	}
	msg, err := ctl.Orch.Fanout.Send(ctx, p.RoomID, p.SenderID, sess.id, p.Content, p.ReplyTo)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (ctl *Controller) handleDeleteMessage(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		MessageID domain.MessageID `json:"messageId"`
		UserID    domain.UserID    `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		return nil, fmt.Errorf("delete-message payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	_, err := ctl.Orch.Fanout.Delete(ctx, p.MessageID, p.UserID)
	return nil, err
}

func (ctl *Controller) handleEditMessage(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		MessageID domain.MessageID `json:"messageId"`
		UserID    domain.UserID    `json:"userId"`
		Content   string           `json:"content"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		return nil, fmt.Errorf("edit-message payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	_, err := ctl.Orch.Fanout.Edit(ctx, p.MessageID, p.UserID, p.Content)
	return nil, err
}

func (ctl *Controller) handleReactMessage(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		MessageID domain.MessageID `json:"messageId"`
		UserID    domain.UserID    `json:"userId"`
		Emoji     string           `json:"emoji"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		return nil, fmt.Errorf("react-message payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	_, err := ctl.Orch.Fanout.React(ctx, p.MessageID, p.UserID, p.Emoji)
	return nil, err
}

// Typing indicators are relayed within the room, never persisted.

func (ctl *Controller) handleTyping(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return nil, fmt.Errorf("typing payload: %w", core.ErrInvalid)
	}
	// The displayed name comes from the persisted account, never the payload.
	username := string(sess.user)
	if u, err := ctl.Orch.Store.User(ctx, sess.user); err == nil {
		username = u.Username
	}
	ctl.relay(sess, p.RoomID, "typing", username)
	return nil, nil
}

func (ctl *Controller) handleStopTyping(sess *clientSession, data json.RawMessage) (any, error) {
	// The payload may be a bare room-id string or {"roomId": ...}.
	var roomID domain.RoomID
	if err := json.Unmarshal(data, &roomID); err != nil {
		var p struct {
			RoomID domain.RoomID `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("stop-typing payload: %w", core.ErrInvalid)
		}
		roomID = p.RoomID
	}
	if roomID == "" {
		return nil, fmt.Errorf("stop-typing payload: %w", core.ErrInvalid)
	}
	ctl.relay(sess, roomID, "stop-typing", nil)
	return nil, nil
}

// relay forwards an event to every other connection in the room and kicks
// connections that could not absorb it.
func (ctl *Controller) relay(sess *clientSession, roomID domain.RoomID, name string, payload any) {
	res := ctl.Orch.Hub.PublishExcept(app.RoomTopic(roomID), sess.id, core.Event{Name: name, Data: payload})
	ctl.Orch.KickSlow(res)
}
