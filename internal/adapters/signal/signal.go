// Package signal is the WebSocket adapter: it authenticates the handshake,
// binds the verified identity to the connection and dispatches the event
// surface onto the coordinating services.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/app/orch"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Orch           *orch.Orchestrator
	ReadLimit      int64
	PingPeriod     time.Duration
	RequestTimeout time.Duration
	SendLimiter    *SendRateLimiter
}

func NewController(o *orch.Orchestrator, readLimit int64, pingPeriod, requestTimeout time.Duration) *Controller {
	return &Controller{
		Orch:           o,
		ReadLimit:      readLimit,
		PingPeriod:     pingPeriod,
		RequestTimeout: requestTimeout,
		SendLimiter:    NewSendRateLimiter(20, 10*time.Second),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// clientSession binds the verified identity to the transport. The identity
// never changes after the handshake; mediaRoom tracks which SFU room this
// connection currently drives, for the disconnect sweep.
type clientSession struct {
	id   domain.ConnID
	user domain.UserID
	conn *wsConn

	mu        sync.Mutex
	mediaRoom domain.RoomID
}

func (s *clientSession) ID() domain.ConnID             { return s.id }
func (s *clientSession) User() domain.UserID           { return s.user }
func (s *clientSession) Signal() core.SignalConnection { return s.conn }

func (s *clientSession) setMediaRoom(r domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaRoom = r
}

func (s *clientSession) currentMediaRoom() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaRoom
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS authenticates the handshake and, only on success, upgrades the
// connection. No anonymous connection is ever admitted.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	token := bearerToken(c)
	user, err := ctl.Orch.Verifier.Verify(token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake refused")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sess := &clientSession{
		id:   domain.ConnID(uuid.NewString()),
		user: user,
		conn: &wsConn{conn: ws, send: make(chan core.Frame, 32)},
	}
	ctl.Orch.Hub.Register(sess)
	log.Info().Str("module", "signal").Str("conn", string(sess.id)).Str("user", string(user)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, sess.conn)
	go ctl.readPump(ctx, cancel, sess)
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
