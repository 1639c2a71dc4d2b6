package busserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/auth"
	"github.com/mivora/stagesync/internal/config"
	"github.com/mivora/stagesync/internal/rtc"
	"github.com/mivora/stagesync/internal/store"
)

// NewServer builds the HTTP server hosting the WS bridge and the REST API.
func NewServer(hub *Hub, jwtCfg *auth.JWTConfig, st store.Store, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	wsHandler := NewWSHandler(hub, jwtCfg, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	var lk *rtc.LiveKit
	if cfg.LiveKitAPIKey != "" && cfg.LiveKitAPISecret != "" {
		lk = rtc.NewLiveKit(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitWSURL)
	}

	handlers := NewAPIHandlers(jwtCfg, st, lk, logger)
	api := router.Group("/api")
	{
		api.POST("/token", handlers.Token)
		api.GET("/sessions/:id/pin", handlers.Pin)
		api.GET("/sessions/:id/bans", handlers.Bans)

		protected := api.Group("")
		protected.Use(AuthMiddleware(jwtCfg, logger))
		protected.POST("/sessions/:id/ban", handlers.Ban)
		protected.POST("/sessions/:id/join", handlers.Join)
	}

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
