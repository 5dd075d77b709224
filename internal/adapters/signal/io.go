package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
)

// envelope is the wire frame: an event name, its payload, and an optional
// correlation id for request/acknowledgement pairs.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	ID    int64           `json:"id,omitempty"`
}

type ackFrame struct {
	Event string `json:"event"`
	ID    int64  `json:"id"`
	Data  any    `json:"data"`
}

func (ctl *Controller) writePump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *clientSession) {
	defer func() {
		cancel()
		ctl.Orch.Disconnect(sess.user, sess.id, sess.currentMediaRoom())
		ctl.SendLimiter.Forget(sess.user)
		sess.conn.Close()
		log.Info().Str("module", "signal").Str("conn", string(sess.id)).Msg("readPump closed")
	}()

	sess.conn.conn.SetReadLimit(ctl.ReadLimit)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handle(sess, data)
		}
	}
}

// handle dispatches one inbound frame. Every handler runs inside a
// bounded context and a recover barrier, so no single operation's failure
// can terminate the coordinator.
func (ctl *Controller) handle(sess *clientSession, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad frame")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("event", env.Event).Any("panic", r).Msg("handler panic")
			if env.ID != 0 {
				ctl.nack(sess, env.ID, "internal error")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), ctl.RequestTimeout)
	defer cancel()

	result, err := ctl.dispatch(ctx, sess, env)
	if env.ID != 0 {
		if err != nil {
			ctl.nack(sess, env.ID, core.Reason(err))
		} else {
			ctl.ack(sess, env.ID, result)
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", env.Event).Str("conn", string(sess.id)).Msg("operation rejected")
	}
}

func (ctl *Controller) dispatch(ctx context.Context, sess *clientSession, env envelope) (any, error) {
	switch env.Event {
	case "user-online":
		return ctl.handleUserOnline(sess)
	case "join-dm":
		return ctl.handleJoinDM(ctx, sess, env.Data)
	case "leave-dm":
		return ctl.handleLeaveDM(sess, env.Data)
	case "join-channel":
		return ctl.handleJoinChannel(ctx, sess, env.Data)
	case "leave-channel":
		return ctl.handleLeaveChannel(sess, env.Data)
	case "join-voice-channel":
		return ctl.handleJoinVoice(sess, env.Data)
	case "leave-voice-channel":
		return ctl.handleLeaveVoice(sess, env.Data)
	case "get-voice-channel-members":
		return ctl.handleVoiceMembers(ctx, sess, env.Data)
	case "send-message":
		return ctl.handleSendMessage(ctx, sess, env.Data)
	case "delete-message":
		return ctl.handleDeleteMessage(ctx, sess, env.Data)
	case "edit-message":
		return ctl.handleEditMessage(ctx, sess, env.Data)
	case "react-message":
		return ctl.handleReactMessage(ctx, sess, env.Data)
	case "typing":
		return ctl.handleTyping(ctx, sess, env.Data)
	case "stop-typing":
		return ctl.handleStopTyping(sess, env.Data)
	case "webrtc-offer", "webrtc-answer", "webrtc-ice":
		return ctl.handleWebRTC(sess, env.Event, env.Data)
	case "start-call", "call-accepted", "call-rejected", "call-ended":
		return ctl.handleCall(sess, env.Event, env.Data)
	case "sfu-join":
		return ctl.handleSfuJoin(ctx, sess, env.Data)
	case "sfu-create-transport":
		return ctl.handleSfuCreateTransport(ctx, sess, env.Data)
	case "sfu-connect-transport":
		return ctl.handleSfuConnectTransport(ctx, sess, env.Data)
	case "sfu-produce":
		return ctl.handleSfuProduce(ctx, sess, env.Data)
	case "sfu-consume":
		return ctl.handleSfuConsume(ctx, sess, env.Data)
	case "sfu-resume":
		return ctl.handleSfuResume(ctx, sess, env.Data)
	case "sfu-leave":
		return ctl.handleSfuLeave(sess, env.Data)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
		return nil, nil
	}
}

func (ctl *Controller) ack(sess *clientSession, id int64, data any) {
	if data == nil {
		data = map[string]bool{"ok": true}
	}
	ctl.sendJSON(sess.conn, ackFrame{Event: "ack", ID: id, Data: data})
}

func (ctl *Controller) nack(sess *clientSession, id int64, reason string) {
	ctl.sendJSON(sess.conn, ackFrame{Event: "ack", ID: id, Data: map[string]string{"error": reason}})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
