package signal

import (
	"encoding/json"
	"fmt"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// handleWebRTC relays negotiation payloads verbatim to every other
// connection in the room. The relay never inspects SDP or candidates.
func (ctl *Controller) handleWebRTC(sess *clientSession, event string, data json.RawMessage) (any, error) {
	var p struct {
		RoomID    domain.RoomID   `json:"roomId"`
		Offer     json.RawMessage `json:"offer"`
		Answer    json.RawMessage `json:"answer"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return nil, fmt.Errorf("%s payload: %w", event, core.ErrInvalid)
	}
	switch event {
	case "webrtc-offer":
		ctl.relay(sess, p.RoomID, event, map[string]any{"offer": p.Offer, "roomId": p.RoomID})
	case "webrtc-answer":
		ctl.relay(sess, p.RoomID, event, map[string]any{"answer": p.Answer})
	case "webrtc-ice":
		ctl.relay(sess, p.RoomID, event, map[string]any{"candidate": p.Candidate})
	}
	return nil, nil
}

// handleCall relays call-lifecycle events. start-call is re-emitted to the
// callee side as incoming-call; the other events pass through unchanged.
func (ctl *Controller) handleCall(sess *clientSession, event string, data json.RawMessage) (any, error) {
	// call-ended historically carries a bare room-id string.
	var roomID domain.RoomID
	if err := json.Unmarshal(data, &roomID); err != nil {
		var p struct {
			RoomID domain.RoomID `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", event, core.ErrInvalid)
		}
		roomID = p.RoomID
	}
	if roomID == "" {
		return nil, fmt.Errorf("%s payload: %w", event, core.ErrInvalid)
	}
	switch event {
	case "start-call":
		// The caller identity comes from the handshake, never the payload.
		ctl.relay(sess, roomID, "incoming-call", map[string]any{"from": sess.user})
	default:
		ctl.relay(sess, roomID, event, nil)
	}
	return nil, nil
}
