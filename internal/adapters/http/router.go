package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/eventchat/internal/adapters/ws"
	"github.com/dkeye/eventchat/internal/chat"
	"github.com/dkeye/eventchat/internal/config"
)

const serviceName = "eventchat"

func SetupRouter(ctx context.Context, cfg *config.Config, svc *chat.Service, ctrl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("EventChatSessions", store))

	// Read-only side channel: no route here mutates chat state.
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"ws":      "/api/ws/chat",
		})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"chat":   svc.Ready(),
			"rooms":  svc.RoomCount(),
		})
	})

	api := r.Group("/api")
	api.GET("/ws/chat", func(c *gin.Context) {
		ctrl.HandleChat(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
