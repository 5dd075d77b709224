// Package push implements the push-notification collaborator. Payloads
// are handed to a Redis channel consumed by the delivery worker fleet;
// the calling fan-out path never waits on it.
package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/domain"
)

const publishTimeout = 5 * time.Second

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(addr, password string, db int) *RedisPublisher {
	return &RedisPublisher{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

// Send publishes the payload to push:<user> from a goroutine with its own
// deadline, detached from the caller's context. Failures are logged and
// dropped; push delivery is best-effort.
func (p *RedisPublisher) Send(_ context.Context, user domain.UserID, payload any) {
	go func() {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("module", "push").Str("user", string(user)).Msg("marshal push payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.rdb.Publish(ctx, "push:"+string(user), b).Err(); err != nil {
			log.Warn().Err(err).Str("module", "push").Str("user", string(user)).Msg("push publish failed")
		}
	}()
}

func (p *RedisPublisher) Close() error { return p.rdb.Close() }

// Nop is wired when push delivery is disabled.
type Nop struct{}

func (Nop) Send(context.Context, domain.UserID, any) {}
