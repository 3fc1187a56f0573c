package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/history"
)

// NewServer builds the gateway's HTTP server: health, room REST endpoints,
// and the WebSocket entry point.
func NewServer(rooms *core.Manager, bcast *core.Broadcaster, store history.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/healthz", healthHandler)

	rh := NewRoomHandlers(rooms, store, logger)
	api := router.Group("/api")
	api.POST("/rooms", rh.CreateRoom)
	api.GET("/rooms/:room/history", rh.RoomHistory)

	router.GET("/ws", gin.WrapH(NewWSHandler(rooms, bcast, cfg.SendBuffer, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
