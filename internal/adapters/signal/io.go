package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/app"
	"github.com/openmeet/openmeet/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, cancel context.CancelFunc, c *WsConn) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, peerID domain.PeerID, c *WsConn) {
	defer func() {
		cancel()
		c.Close()
		if room, ok := ctl.Manager.RoomOfPeer(peerID); ok {
			room.Disconnect(peerID)
		}
		log.Info().Str("module", "signal").Str("peer", string(peerID)).Msg("readPump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("readPump read error")
				return
			}
			ctl.dispatch(peerID, c, data)
		}
	}
}

func (ctl *Controller) dispatch(peerID domain.PeerID, c *WsConn, data []byte) {
	var env struct {
		Act  app.Action      `json:"act"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad envelope")
		return
	}
	room, ok := ctl.Manager.RoomOfPeer(peerID)
	if !ok {
		log.Warn().Str("module", "signal").Str("peer", string(peerID)).Msg("message from unregistered peer")
		return
	}

	switch env.Act {
	case app.ActHeartbeat:
		if err := room.Heartbeat(peerID); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("heartbeat")
			return
		}
		if frame, err := app.EncodeAction(app.ActHeartbeat, nil); err == nil {
			_ = c.TrySend(frame)
		}
	case app.ActMessage:
		room.HandleChat(peerID, env.Data)
	default:
		log.Warn().Str("module", "signal").Int("act", int(env.Act)).Msg("unknown action")
	}
}
