package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/auth"
	"mfglink/realtime/internal/config"
	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/hub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller upgrades authenticated requests to WebSocket sessions and runs
// their pumps.
type Controller struct {
	Router *hub.Router
	Cfg    *config.Config
}

func NewController(router *hub.Router, cfg *config.Config) *Controller {
	return &Controller{Router: router, Cfg: cfg}
}

// HandleWS verifies the bearer credential from the token query parameter and,
// on success, binds one new session to the decoded identity. A missing or
// expired credential refuses the connection before the upgrade.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	claims, err := auth.Verify(ctl.Cfg.Secret, c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("rejecting unauthenticated upgrade")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	user := &domain.User{ID: claims.UserID, FullName: claims.FullName, CompanyName: claims.CompanyName}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	sock.SetReadLimit(ctl.Cfg.ReadLimit)

	sid := hub.SessionID(uuid.NewString())
	conn := newWSConn(sock, ctl.Cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Router.Registry.Bind(sid, user, conn, cancel)
	ctl.Router.Connected()
	log.Info().Str("module", "ws").Str("sid", string(sid)).Int64("user", int64(user.ID)).Msg("session opened")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
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

// readPump processes inbound frames strictly in order: HandleRaw runs to
// completion before the next read, so the hub never sees two frames from the
// same connection concurrently.
func (ctl *Controller) readPump(ctx context.Context, sid hub.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("session closed")
		ctl.Router.Disconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.Router.HandleRaw(sid, data)
		}
	}
}
