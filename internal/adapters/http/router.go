package http

import (
	"net/http"

	"github.com/dkeye/mediactl/internal/app/session"
	"github.com/dkeye/mediactl/internal/config"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter exposes the observability surface: health, per-room and
// per-user stats, and prometheus metrics. Session control itself rides the
// message bus, not HTTP.
func SetupRouter(cfg *config.Config, mgr *session.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/v1")

	api.GET("/rooms/:roomId/stats", func(c *gin.Context) {
		room := domain.RoomID(c.Param("roomId"))
		c.JSON(http.StatusOK, mgr.RoomStats(room))
	})

	api.GET("/rooms/:roomId/empty", func(c *gin.Context) {
		room := domain.RoomID(c.Param("roomId"))
		c.JSON(http.StatusOK, gin.H{"empty": mgr.IsRoomEmpty(room)})
	})

	api.GET("/users/:userId/stats", func(c *gin.Context) {
		user := domain.UserID(c.Param("userId"))
		c.JSON(http.StatusOK, mgr.UserStats(user))
	})

	return r
}
