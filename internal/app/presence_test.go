package app

import (
	"testing"

	"github.com/nexora-app/pulse/internal/domain"
)

func TestPresenceTransitions(t *testing.T) {
	p := NewPresence()

	if !p.MarkOnline("alice", "c1") {
		t.Fatal("first connection should be an offline to online transition")
	}
	if p.MarkOnline("alice", "c2") {
		t.Fatal("second connection of the same user is not a transition")
	}
	if !p.IsOnline("alice") {
		t.Fatal("IsOnline = false with two live connections")
	}

	if p.MarkOffline("alice", "c1") {
		t.Fatal("dropping one of two connections is not a transition")
	}
	if !p.IsOnline("alice") {
		t.Fatal("IsOnline = false with one live connection")
	}
	if !p.MarkOffline("alice", "c2") {
		t.Fatal("dropping the last connection should be a transition")
	}
	if p.IsOnline("alice") {
		t.Fatal("IsOnline = true after last connection dropped")
	}
}

func TestPresenceMarkOfflineUnknown(t *testing.T) {
	p := NewPresence()
	if p.MarkOffline("ghost", "c1") {
		t.Fatal("offline for unknown user must not report a transition")
	}
}

func TestPresenceDuplicateConn(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("alice", "c1")
	if p.MarkOnline("alice", "c1") {
		t.Fatal("re-registering the same connection is not a transition")
	}
	if !p.MarkOffline("alice", "c1") {
		t.Fatal("single registered connection should still count once")
	}
}

func TestPresenceOnlineSorted(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("carol", "c3")
	p.MarkOnline("alice", "c1")
	p.MarkOnline("bob", "c2")
	p.MarkOffline("bob", "c2")

	got := p.Online()
	want := []domain.UserID{"alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("Online() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Online() = %v, want %v", got, want)
		}
	}
}
