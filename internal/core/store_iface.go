package core

import (
	"context"

	"github.com/nexora-app/pulse/internal/domain"
)

// Store is the persistence collaborator. The coordinator never owns
// durable state; it reads rooms and writes messages through this surface.
// Implementations must return ErrNotFound for unknown identifiers.
type Store interface {
	User(ctx context.Context, id domain.UserID) (*domain.User, error)
	DmRoom(ctx context.Context, id domain.RoomID) (*domain.DmRoom, error)
	Server(ctx context.Context, id domain.ServerID) (*domain.Server, error)

	CreateMessage(ctx context.Context, msg *domain.Message) error
	Message(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	UpdateMessage(ctx context.Context, msg *domain.Message) error

	// MarkRoomRead adds the user to the read set of every message in the
	// room that does not carry it yet. Returns the number of messages
	// that changed.
	MarkRoomRead(ctx context.Context, room domain.RoomID, user domain.UserID) (int, error)
	MarkMessageRead(ctx context.Context, id domain.MessageID, user domain.UserID) error
}
