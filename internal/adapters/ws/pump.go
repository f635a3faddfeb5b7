package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
	"github.com/dkeye/eventchat/pkg/wire"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump serializes all handlers for one connection: no two handlers
// for the same connection ever run concurrently.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, ms core.MemberSession, c *wsConn) {
	cc := ms.Context()
	defer func() {
		log.Info().Str("module", "ws").Str("conn", string(cc.ID)).Msg("readPump closing")
		ctl.svc.Disconnect(context.Background(), ms)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	// The pong deadline leaves one ping period plus slack; a peer that
	// stops answering pings is detected here, not by the writer.
	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "ws").Str("conn", string(cc.ID)).Msg("readPump read error")
				}
				return
			}
			ctl.handleFrame(ctx, ms, c, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.Probe
	if err := wire.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		ctl.sendError(c, "bad payload")
		return
	}

	switch p.Type {
	case wire.EventJoin:
		ctl.handleJoin(ctx, ms, c, data)
	case wire.EventLeave:
		ctl.handleLeave(ms, c, data)
	case wire.EventSend:
		ctl.handleSend(ctx, ms, c, data)
	case wire.EventTyping:
		ctl.handleTyping(ms, c, data)
	case wire.EventStopTyping:
		ctl.handleStopTyping(ms, c, data)
	default:
		log.Warn().Str("module", "ws").Str("type", p.Type).Msg("unknown event")
	}
}

func (ctl *Controller) handleJoin(ctx context.Context, ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.RoomRef
	if err := wire.Decode(data, &p); err != nil || p.EventID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	eventID := domain.EventID(p.EventID)
	log.Info().Str("module", "ws").Str("conn", string(ms.Context().ID)).Str("event", p.EventID).Msg("join")
	if _, err := ctl.svc.Join(ctx, ms, eventID); err != nil {
		ctl.sendError(c, err.Error())
		return
	}
}

func (ctl *Controller) handleLeave(ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.RoomRef
	if err := wire.Decode(data, &p); err != nil || p.EventID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	log.Info().Str("module", "ws").Str("conn", string(ms.Context().ID)).Str("event", p.EventID).Msg("leave")
	ctl.svc.Leave(ms, domain.EventID(p.EventID))
}

func (ctl *Controller) handleSend(ctx context.Context, ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.SendMessage
	if err := wire.Decode(data, &p); err != nil || p.EventID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	if !ctl.limiter.Allow(ms.Context().Identity.UserID) {
		ctl.sendError(c, "too many messages")
		return
	}
	if _, err := ctl.svc.Send(ctx, ms, domain.EventID(p.EventID), p.Content); err != nil {
		ctl.sendError(c, err.Error())
		return
	}
}

func (ctl *Controller) handleTyping(ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.RoomRef
	if err := wire.Decode(data, &p); err != nil || p.EventID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	ctl.svc.Typing(ms, domain.EventID(p.EventID))
}

func (ctl *Controller) handleStopTyping(ms core.MemberSession, c *wsConn, data []byte) {
	var p wire.RoomRef
	if err := wire.Decode(data, &p); err != nil || p.EventID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	ctl.svc.StopTyping(ms, domain.EventID(p.EventID))
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	b, err := json.Marshal(wire.Error{Type: wire.EventError, Message: msg})
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendError marshal")
		return
	}
	_ = c.TrySend(b)
}
