// Package httpapi wires the gin surface: the WebSocket entrypoint, health and
// metrics, and the internal push trigger used by the external notification
// persister.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/adapters/ws"
	"mfglink/realtime/internal/config"
	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/hub"
)

func SetupRouter(ctx context.Context, cfg *config.Config, router *hub.Router, notifier *hub.Notifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := ws.NewController(router, cfg)
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal", serviceTokenGuard(cfg.NotifyToken))
	internal.POST("/notifications", handlePush(notifier))

	log.Info().Str("module", "httpapi").Msg("router setup")
	return r
}

// serviceTokenGuard protects the internal surface with a shared service token.
func serviceTokenGuard(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Service-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad service token"})
			return
		}
		c.Next()
	}
}

// handlePush accepts a persisted notification record and pushes it to the
// recipient's live connections.
func handlePush(notifier *hub.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec domain.Notification
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification record"})
			return
		}
		delivered, err := notifier.Push(rec)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	}
}
