package app

import (
	"context"
	"errors"
	"testing"

	"github.com/nexora-app/pulse/internal/adapters/store"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

func seedStore() *store.Memory {
	st := store.NewMemory()
	st.AddUser(domain.User{ID: "alice", Username: "alice"})
	st.AddUser(domain.User{ID: "bob", Username: "bob"})
	st.AddDmRoom(domain.DmRoom{ID: "dm1", Users: []domain.UserID{"alice", "bob"}})
	st.AddServer(domain.Server{
		ID:      "srv1",
		Name:    "general",
		Owner:   "alice",
		Members: []domain.UserID{"bob"},
		Channels: []domain.Channel{
			{ID: "text1", Name: "chat", Type: domain.ChannelText},
			{ID: "voice1", Name: "lounge", Type: domain.ChannelVoice},
			{ID: "voice2", Name: "gaming", Type: domain.ChannelVoice},
		},
	})
	return st
}

func TestJoinDMAuthorization(t *testing.T) {
	st := seedStore()
	h := NewHub()
	m := NewMembership(st, h)

	intruder := newFakeSession("c1", "mallory")
	h.Register(intruder)
	if _, err := m.JoinDM(context.Background(), "dm1", "mallory", intruder.id); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("JoinDM by non-member: err = %v, want ErrForbidden", err)
	}
	if _, err := m.JoinDM(context.Background(), "nope", "alice", intruder.id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("JoinDM unknown room: err = %v, want ErrNotFound", err)
	}
}

func TestJoinDMMarksUnreadAndNotifies(t *testing.T) {
	st := seedStore()
	h := NewHub()
	m := NewMembership(st, h)
	ctx := context.Background()

	alice := newFakeSession("c1", "alice")
	bob := newFakeSession("c2", "bob")
	h.Register(alice)
	h.Register(bob)
	h.Subscribe(UserTopic("alice"), alice.id)
	h.Subscribe(UserTopic("bob"), bob.id)

	// One unread message from alice.
	f := NewFanout(st, h, nopPush{})
	if _, err := f.Send(ctx, "dm1", "alice", "c1", "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	room, err := m.JoinDM(ctx, "dm1", "bob", bob.id)
	if err != nil {
		t.Fatalf("JoinDM: %v", err)
	}
	if room.ID != "dm1" {
		t.Errorf("room.ID = %s, want dm1", room.ID)
	}
	if got := alice.signal.count("messages-read"); got != 1 {
		t.Errorf("other participant got %d messages-read, want 1", got)
	}
	if got := bob.signal.count("messages-read"); got != 0 {
		t.Errorf("joining reader got %d messages-read, want 0", got)
	}

	// Re-join with nothing unread must stay silent.
	if _, err := m.JoinDM(ctx, "dm1", "bob", bob.id); err != nil {
		t.Fatalf("second JoinDM: %v", err)
	}
	if got := alice.signal.count("messages-read"); got != 1 {
		t.Errorf("re-join produced extra messages-read, got %d", got)
	}
}

func TestJoinChannelChecks(t *testing.T) {
	st := seedStore()
	h := NewHub()
	m := NewMembership(st, h)
	ctx := context.Background()

	tests := []struct {
		name    string
		server  domain.ServerID
		channel domain.ChannelID
		user    domain.UserID
		wantErr error
	}{
		{"owner", "srv1", "text1", "alice", nil},
		{"member", "srv1", "text1", "bob", nil},
		{"non member", "srv1", "text1", "mallory", core.ErrForbidden},
		{"unknown channel", "srv1", "nope", "alice", core.ErrNotFound},
		{"unknown server", "nope", "text1", "alice", core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession(domain.ConnID("conn-"+tt.name), tt.user)
			h.Register(s)
			err := m.JoinChannel(ctx, tt.server, tt.channel, tt.user, s.id)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("JoinChannel: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("JoinChannel err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVoiceOccupancy(t *testing.T) {
	st := seedStore()
	m := NewMembership(st, NewHub())

	got := m.JoinVoice("voice1", "alice")
	if len(got) != 1 || got[0] != "alice" {
		t.Fatalf("JoinVoice snapshot = %v, want [alice]", got)
	}
	// Joining twice (second socket) occupies once.
	if got = m.JoinVoice("voice1", "alice"); len(got) != 1 {
		t.Fatalf("duplicate JoinVoice snapshot = %v, want [alice]", got)
	}
	got = m.JoinVoice("voice1", "bob")
	if len(got) != 2 {
		t.Fatalf("snapshot = %v, want 2 occupants", got)
	}

	got = m.LeaveVoice("voice1", "alice")
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("LeaveVoice snapshot = %v, want [bob]", got)
	}
	if got = m.LeaveVoice("voice1", "bob"); got != nil {
		t.Fatalf("last LeaveVoice snapshot = %v, want nil", got)
	}
	if occ := m.VoiceOccupants("voice1"); len(occ) != 0 {
		t.Fatalf("occupants after everyone left = %v", occ)
	}
}

func TestSweepVoiceSingleShot(t *testing.T) {
	st := seedStore()
	m := NewMembership(st, NewHub())
	m.JoinVoice("voice1", "alice")
	m.JoinVoice("voice2", "alice")
	m.JoinVoice("voice1", "bob")

	swept := m.SweepVoice("alice")
	if len(swept) != 2 {
		t.Fatalf("SweepVoice = %v, want 2 channels", swept)
	}
	if again := m.SweepVoice("alice"); len(again) != 0 {
		t.Fatalf("second sweep = %v, want empty", again)
	}
	if occ := m.VoiceOccupants("voice1"); len(occ) != 1 || occ[0] != "bob" {
		t.Fatalf("voice1 occupants after sweep = %v, want [bob]", occ)
	}
}

func TestServerVoiceState(t *testing.T) {
	st := seedStore()
	m := NewMembership(st, NewHub())
	ctx := context.Background()
	m.JoinVoice("voice1", "bob")

	state, err := m.ServerVoiceState(ctx, "srv1", "alice")
	if err != nil {
		t.Fatalf("ServerVoiceState: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("state has %d channels, want the 2 voice channels", len(state))
	}
	if occ := state["voice1"]; len(occ) != 1 || occ[0] != "bob" {
		t.Errorf("voice1 = %v, want [bob]", occ)
	}
	if occ := state["voice2"]; len(occ) != 0 {
		t.Errorf("voice2 = %v, want empty", occ)
	}
	if _, ok := state["text1"]; ok {
		t.Error("text channel leaked into voice state")
	}

	if _, err := m.ServerVoiceState(ctx, "srv1", "mallory"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("non-member voice state err = %v, want ErrForbidden", err)
	}
}
