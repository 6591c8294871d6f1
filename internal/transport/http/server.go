package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "transitchat/internal/app"
	"transitchat/internal/bootstrap"
	"transitchat/internal/cache"
	"transitchat/internal/platform/rabbitmq"
	"transitchat/internal/repository"
	"transitchat/internal/transport/http/handler"
	"transitchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	auditPublisher := rabbitmq.NewAuditPublisher(app.MQConn, app.Config.RabbitMQ.TurnAuditQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		appsvc.GoogleOAuthConfig{
			ClientID:     app.Config.Auth.GoogleClientID,
			ClientSecret: app.Config.Auth.GoogleClientSecret,
			RedirectURL:  app.Config.Auth.GoogleRedirectURL,
		},
		app.Gemini,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		app.Logger,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		userRepo,
		historyCache,
		app.Documents,
		app.Gemini,
		auditPublisher,
		app.Logger,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	documentsHandler := handler.NewDocumentsHandler(app.Documents)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.GET("/google/login", authHandler.GoogleLogin)
	authGroup.GET("/google/callback", authHandler.GoogleCallback)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)
	authGroup.PUT("/api-key", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.SaveAPIKey)
	authGroup.DELETE("/api-key", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.ClearAPIKey)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.PUT("/sessions/:id", chatHandler.RenameSession)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.POST("/messages/stream", chatHandler.StreamMessage)

	v1.GET("/documents", middleware.AuthJWT(app.Config.Auth.JWTSecret), documentsHandler.Status)

	return router
}
