package core

import (
	"context"

	"github.com/nexora-app/pulse/internal/domain"
)

// Push is the push-notification collaborator. Delivery is best-effort and
// fire-and-forget: Send must never block the calling fan-out path.
type Push interface {
	Send(ctx context.Context, user domain.UserID, payload any)
}
