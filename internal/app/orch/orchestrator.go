// Package orch wires the coordinating services together and owns the
// cross-component flows: presence transitions and disconnect cleanup.
package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/app"
	"github.com/nexora-app/pulse/internal/app/sfu"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

type Orchestrator struct {
	Hub        *app.Hub
	Presence   *app.Presence
	Membership *app.Membership
	Fanout     *app.Fanout
	SFU        *sfu.Manager
	Store      core.Store
	Verifier   core.TokenVerifier
}

// Online records one connection for the user and, on an offline→online
// transition, broadcasts the full online-user list to every connection.
// The connection also joins the user's personal notification channel.
func (o *Orchestrator) Online(user domain.UserID, conn domain.ConnID) {
	o.Hub.Subscribe(app.UserTopic(user), conn)
	if o.Presence.MarkOnline(user, conn) {
		o.broadcastOnline()
	}
}

// Disconnect runs the best-effort cleanup sweep for a closed connection.
// Every step is idempotent; a prior explicit leave makes the matching
// step a no-op.
func (o *Orchestrator) Disconnect(user domain.UserID, conn domain.ConnID, mediaRoom domain.RoomID) {
	o.Hub.Drop(conn)

	if o.Presence.MarkOffline(user, conn) {
		o.broadcastOnline()
	}

	for _, ch := range o.Membership.SweepVoice(user) {
		o.BroadcastVoiceMembers(ch)
	}

	if mediaRoom != "" {
		for _, id := range o.SFU.Leave(mediaRoom, user) {
			o.Hub.Publish(app.RoomTopic(mediaRoom), core.Event{
				Name: "sfu-producer-closed",
				Data: map[string]string{"producerId": id},
			})
		}
	}
	log.Info().Str("module", "app.orch").Str("conn", string(conn)).Str("user", string(user)).Msg("disconnect cleanup done")
}

func (o *Orchestrator) broadcastOnline() {
	o.Hub.Broadcast(core.Event{Name: "online-users", Data: o.Presence.Online()})
}

// BroadcastVoiceMembers sends the channel's full occupant snapshot to all
// connected clients, not only the owning server's members. Clients key
// their sidebars off it without having joined the channel.
func (o *Orchestrator) BroadcastVoiceMembers(ch domain.ChannelID) {
	o.Hub.Broadcast(core.Event{
		Name: "voice-channel-members",
		Data: map[string]any{"channelId": ch, "members": o.Membership.VoiceOccupants(ch)},
	})
}

// KickSlow closes connections the hub reported as backpressured. A client
// that cannot drain its send buffer is disconnected rather than allowed
// to stall fan-out for the room.
func (o *Orchestrator) KickSlow(res app.PublishResult) {
	for _, id := range res.Dropped {
		if cs, ok := o.Hub.Session(id); ok {
			log.Warn().Str("module", "app.orch").Str("conn", string(id)).Msg("kicking slow consumer")
			cs.Signal().Close()
		}
	}
}
