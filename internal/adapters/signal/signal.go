// Package signal is the persistent-connection binding of the peer session.
// A socket at /sock/:userId/:peerId joins the user's room on connect and
// carries the numeric action envelope for the lifetime of the peer.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/app"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/directory"
	"github.com/openmeet/openmeet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Manager   *app.Manager
	Directory *directory.Directory

	limiter   *JoinRateLimiter
	readLimit int64
}

func NewController(mgr *app.Manager, dir *directory.Directory, cfg *config.Config) *Controller {
	return &Controller{
		Manager:   mgr,
		Directory: dir,
		limiter:   NewJoinRateLimiter(cfg.Peer.JoinLimit, cfg.Peer.JoinWindow),
		readLimit: cfg.HTTP.ReadLimit,
	}
}

// WsConn is the socket half a room talks to. Sends go through a buffered
// channel so a slow reader stalls only its own connection.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
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

func (c *WsConn) Close() {
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the identity in the path, upgrades, and admits the peer to
// its room. An unknown user or an exhausted join budget closes immediately.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	userID := domain.UserID(c.Param("userId"))
	peerID := domain.PeerID(c.Param("peerId"))

	if !ctl.limiter.Allow(userID) {
		log.Warn().Str("module", "signal").Str("user", string(userID)).Msg("join rate limited")
		c.Status(http.StatusTooManyRequests)
		return
	}
	user, err := ctl.Directory.UserByID(userID)
	if err != nil {
		log.Warn().Str("module", "signal").Str("user", string(userID)).Msg("unknown user")
		c.Status(http.StatusForbidden)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	if err := ctl.Manager.ConnectUser(conn, user, peerID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(userID)).Msg("join refused")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("user", string(userID)).
		Str("peer", string(peerID)).Msg("peer connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, conn)
	go ctl.readPump(ctx, cancel, peerID, conn)
}
