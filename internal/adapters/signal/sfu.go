package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/nexora-app/pulse/internal/app"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// Every sfu-* event is a request/acknowledgement pair: the result payload
// or {error: reason} travels back on the frame's correlation id.

type sfuScope struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

func (ctl *Controller) sfuScope(sess *clientSession, data json.RawMessage) (sfuScope, error) {
	var p sfuScope
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return sfuScope{}, fmt.Errorf("sfu payload: %w", core.ErrInvalid)
	}
	if err := sess.boundUser(p.UserID); err != nil {
		return sfuScope{}, err
	}
	return p, nil
}

func (ctl *Controller) handleSfuJoin(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	res, err := ctl.Orch.SFU.Join(ctx, scope.RoomID, scope.UserID)
	if err != nil {
		return nil, err
	}
	ctl.Orch.Hub.Subscribe(app.RoomTopic(scope.RoomID), sess.id)
	sess.setMediaRoom(scope.RoomID)
	return res, nil
}

func (ctl *Controller) handleSfuCreateTransport(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	var p struct {
		Direction core.TransportDirection `json:"direction"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("sfu-create-transport payload: %w", core.ErrInvalid)
	}
	info, err := ctl.Orch.SFU.CreateTransport(ctx, scope.RoomID, scope.UserID, p.Direction)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (ctl *Controller) handleSfuConnectTransport(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	var p struct {
		TransportID    string                `json:"transportId"`
		DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TransportID == "" {
		return nil, fmt.Errorf("sfu-connect-transport payload: %w", core.ErrInvalid)
	}
	if err := ctl.Orch.SFU.ConnectTransport(ctx, scope.RoomID, scope.UserID, p.TransportID, p.DTLSParameters); err != nil {
		return nil, err
	}
	return nil, nil
}

func (ctl *Controller) handleSfuProduce(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	var p struct {
		TransportID   string               `json:"transportId"`
		Kind          string               `json:"kind"`
		RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TransportID == "" {
		return nil, fmt.Errorf("sfu-produce payload: %w", core.ErrInvalid)
	}
	kind := webrtc.NewRTPCodecType(p.Kind)
	if kind != webrtc.RTPCodecTypeAudio && kind != webrtc.RTPCodecTypeVideo {
		return nil, fmt.Errorf("kind %q: %w", p.Kind, core.ErrInvalid)
	}
	prod, err := ctl.Orch.SFU.Produce(ctx, scope.RoomID, scope.UserID, p.TransportID, kind, p.RTPParameters)
	if err != nil {
		return nil, err
	}
	// Announce to every other peer in the room, never the producer itself.
	ctl.Orch.Hub.PublishExcept(app.RoomTopic(scope.RoomID), sess.id, core.Event{Name: "sfu-new-producer", Data: prod})
	return map[string]string{"id": prod.ProducerID}, nil
}

func (ctl *Controller) handleSfuConsume(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	var p struct {
		TransportID     string                 `json:"transportId"`
		ProducerID      string                 `json:"producerId"`
		RTPCapabilities webrtc.RTPCapabilities `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TransportID == "" || p.ProducerID == "" {
		return nil, fmt.Errorf("sfu-consume payload: %w", core.ErrInvalid)
	}
	res, err := ctl.Orch.SFU.Consume(ctx, scope.RoomID, scope.UserID, p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// handleSfuResume resolves the peer from the connection's current media
// room; the client supplies only the consumer id.
func (ctl *Controller) handleSfuResume(ctx context.Context, sess *clientSession, data json.RawMessage) (any, error) {
	var p struct {
		ConsumerID string `json:"consumerId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ConsumerID == "" {
		return nil, fmt.Errorf("sfu-resume payload: %w", core.ErrInvalid)
	}
	room := sess.currentMediaRoom()
	if room == "" {
		return nil, fmt.Errorf("no joined media room: %w", core.ErrNotFound)
	}
	if err := ctl.Orch.SFU.Resume(ctx, room, sess.user, p.ConsumerID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (ctl *Controller) handleSfuLeave(sess *clientSession, data json.RawMessage) (any, error) {
	scope, err := ctl.sfuScope(sess, data)
	if err != nil {
		return nil, err
	}
	for _, id := range ctl.Orch.SFU.Leave(scope.RoomID, scope.UserID) {
		ctl.Orch.Hub.PublishExcept(app.RoomTopic(scope.RoomID), sess.id, core.Event{
			Name: "sfu-producer-closed",
			Data: map[string]string{"producerId": id},
		})
	}
	ctl.Orch.Hub.Unsubscribe(app.RoomTopic(scope.RoomID), sess.id)
	if sess.currentMediaRoom() == scope.RoomID {
		sess.setMediaRoom("")
	}
	return nil, nil
}
