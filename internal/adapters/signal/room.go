package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// boundUser rejects any payload whose user id differs from the identity
// bound at the handshake.
func (s *clientSession) boundUser(supplied domain.UserID) error {
	if supplied == "" {
		return fmt.Errorf("user id: %w", core.ErrInvalid)
	}
	if supplied != s.user {
		return fmt.Errorf("user %s: %w", supplied, core.ErrIdentityMismatch)
	}
	return nil
}

func (ctl *Controller) handleJoinDM(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		RoomID domain.RoomID `json:"roomId"`
		UserID domain.UserID `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return nil, fmt.Errorf("join-dm payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	if _, err := ctl.Orch.Membership.JoinDM(ctx, p.RoomID, p.UserID, sess.id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (ctl *Controller) handleJoinChannel(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		ServerID  domain.ServerID  `json:"serverId"`
		ChannelID domain.ChannelID `json:"channelId"`
		UserID    domain.UserID    `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ServerID == "" || p.ChannelID == "" {
		return nil, fmt.Errorf("join-channel payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.Membership.JoinChannel(ctx, p.ServerID, p.ChannelID, p.UserID, sess.id)
}

func (ctl *Controller) handleLeaveDM(sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return nil, fmt.Errorf("leave-dm payload: %w", core.ErrInvalid)
	}
	ctl.Orch.Membership.LeaveRoom(p.RoomID, sess.id)
	return nil, nil
}

func (ctl *Controller) handleLeaveChannel(sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		ChannelID domain.ChannelID `json:"channelId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == "" {
		return nil, fmt.Errorf("leave-channel payload: %w", core.ErrInvalid)
	}
	ctl.Orch.Membership.LeaveChannel(p.ChannelID, sess.id)
	return nil, nil
}

type voicePayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
}

func (ctl *Controller) handleJoinVoice(sess *clientSession, data json.RawMessage) (any, error) {
	var p voicePayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == "" {
		return nil, fmt.Errorf("join-voice payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	ctl.Orch.Membership.JoinVoice(p.ChannelID, p.UserID)
	ctl.Orch.BroadcastVoiceMembers(p.ChannelID)
	return nil, nil
}

func (ctl *Controller) handleLeaveVoice(sess *clientSession, data json.RawMessage) (any, error) {
	var p voicePayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == "" {
		return nil, fmt.Errorf("leave-voice payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	ctl.Orch.Membership.LeaveVoice(p.ChannelID, p.UserID)
	ctl.Orch.BroadcastVoiceMembers(p.ChannelID)
	return nil, nil
}

// handleVoiceMembers answers with a per-channel occupant snapshot for the
// server's voice channels.
func (ctl *Controller) handleVoiceMembers(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		ServerID domain.ServerID `json:"serverId"`
		UserID   domain.UserID   `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ServerID == "" {
		return nil, fmt.Errorf("voice-members payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return nil, err
	}
	state, err := ctl.Orch.Membership.ServerVoiceState(ctx, p.ServerID, p.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"channels": state}, nil
}
