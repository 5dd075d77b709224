package store

import (
	"context"
	"errors"
	"testing"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

func TestLookupsNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.User(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("User err = %v, want ErrNotFound", err)
	}
	if _, err := m.DmRoom(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DmRoom err = %v, want ErrNotFound", err)
	}
	if _, err := m.Server(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Server err = %v, want ErrNotFound", err)
	}
	if _, err := m.Message(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Message err = %v, want ErrNotFound", err)
	}
}

func TestReadsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.AddDmRoom(domain.DmRoom{ID: "dm1", Users: []domain.UserID{"alice", "bob"}})

	room, err := m.DmRoom(ctx, "dm1")
	if err != nil {
		t.Fatalf("DmRoom: %v", err)
	}
	room.Users[0] = "mallory"

	again, err := m.DmRoom(ctx, "dm1")
	if err != nil {
		t.Fatalf("DmRoom: %v", err)
	}
	if again.Users[0] != "alice" {
		t.Fatal("mutating a returned room leaked into the store")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	msg := &domain.Message{
		ID:      "m1",
		Room:    "dm1",
		Sender:  "alice",
		Content: "hello",
		ReadBy:  []domain.UserID{"alice"},
		ReplyTo: &domain.ReplyRef{ID: "m0", Username: "bob", Content: "hi"},
	}
	if err := m.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := m.CreateMessage(ctx, &domain.Message{}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("CreateMessage without id err = %v, want ErrInvalid", err)
	}

	got, err := m.Message(ctx, "m1")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if got.Content != "hello" || got.ReplyTo == nil || got.ReplyTo.ID != "m0" {
		t.Errorf("round trip lost fields: %+v", got)
	}

	// Mutating the retrieved copy must not affect the stored record.
	got.ReadBy = append(got.ReadBy, "bob")
	fresh, _ := m.Message(ctx, "m1")
	if fresh.ReadByUser("bob") {
		t.Fatal("mutating a returned message leaked into the store")
	}

	got.Content = "edited"
	if err := m.UpdateMessage(ctx, got); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	fresh, _ = m.Message(ctx, "m1")
	if fresh.Content != "edited" {
		t.Errorf("update not persisted, content = %q", fresh.Content)
	}

	if err := m.UpdateMessage(ctx, &domain.Message{ID: "nope"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("UpdateMessage unknown err = %v, want ErrNotFound", err)
	}
}

func TestMarkRoomReadCountsChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, msg := range []domain.Message{
		{ID: "m1", Room: "dm1", Sender: "alice", ReadBy: []domain.UserID{"alice"}},
		{ID: "m2", Room: "dm1", Sender: "alice", ReadBy: []domain.UserID{"alice", "bob"}},
		{ID: "m3", Room: "dm2", Sender: "alice", ReadBy: []domain.UserID{"alice"}},
	} {
		msg := msg
		if err := m.CreateMessage(ctx, &msg); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	changed, err := m.MarkRoomRead(ctx, "dm1", "bob")
	if err != nil {
		t.Fatalf("MarkRoomRead: %v", err)
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1 (m2 already read, m3 other room)", changed)
	}

	changed, err = m.MarkRoomRead(ctx, "dm1", "bob")
	if err != nil {
		t.Fatalf("MarkRoomRead: %v", err)
	}
	if changed != 0 {
		t.Fatalf("second pass changed = %d, want 0", changed)
	}

	other, _ := m.Message(ctx, "m3")
	if other.ReadByUser("bob") {
		t.Fatal("MarkRoomRead crossed room boundary")
	}
}

func TestMarkMessageRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.MarkMessageRead(ctx, "nope", "bob"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	msg := &domain.Message{ID: "m1", Room: "dm1", Sender: "alice", ReadBy: []domain.UserID{"alice"}}
	if err := m.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := m.MarkMessageRead(ctx, "m1", "bob"); err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	got, _ := m.Message(ctx, "m1")
	if !got.ReadByUser("bob") {
		t.Fatal("read mark not persisted")
	}
}
