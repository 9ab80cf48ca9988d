package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/service/chat"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// NewServer builds an HTTP server with the WebSocket endpoint and REST API.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	chatService *chat.Service,
	users store.UserStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(MetricsMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiHandlers := NewAPIHandlers(authService, logger)
	chatHandlers := NewChatHandlers(chatService, logger)
	userHandlers := NewUserHandlers(users, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/chat/:threadId", chatHandlers.GetHistory)
	protected.POST("/chat", chatHandlers.SendMessage)
	protected.GET("/threads", chatHandlers.ListThreads)
	protected.GET("/users", userHandlers.LookupUser)

	// The upgrade hijacks the connection, which gin's writer refuses once
	// a status is written, so /ws stays outside the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(cfg.CORSAllowedOrigins)(mux),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func withCORS(origins []string) func(stdhttp.Handler) stdhttp.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
