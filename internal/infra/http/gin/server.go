package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/infra/config"
	"campusmarket/internal/infra/obs"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
	UpdateProfile(c *gin.Context)
	ChangePassword(c *gin.Context)
}

type ChatHTTP interface {
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	UnreadCount(c *gin.Context)
}

type ChatSocketHTTP interface {
	Serve(c *gin.Context)
}

type Handlers struct {
	Auth           AuthHTTP
	Chat           ChatHTTP
	ChatSocket     ChatSocketHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
		api.PUT("/auth/me", h.Auth.UpdateProfile)
		api.PUT("/auth/password", h.Auth.ChangePassword)
	}
	if h.Chat != nil {
		chatGroup := api.Group("/chat")
		chatGroup.GET("/conversations", h.Chat.ListConversations)
		chatGroup.GET("/messages", h.Chat.ListMessages)
		chatGroup.POST("/messages", h.Chat.SendMessage)
		chatGroup.POST("/messages/read", h.Chat.MarkRead)
		chatGroup.GET("/unread-count", h.Chat.UnreadCount)
		if h.ChatSocket != nil {
			chatGroup.GET("/ws", h.ChatSocket.Serve)
		}
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
