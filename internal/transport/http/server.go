package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/ai"
	appsvc "docuchat/internal/app"
	"docuchat/internal/bootstrap"
	"docuchat/internal/cache"
	rabbitmqClient "docuchat/internal/platform/rabbitmq"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/handler"
	"docuchat/internal/transport/http/middleware"
	"docuchat/internal/websearch"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Log), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.Postgres)
	sessionRepo := repository.NewSessionRepository(app.Postgres)
	messageRepo := repository.NewMessageRepository(app.Postgres)
	documentRepo := repository.NewDocumentRepository(app.Postgres)
	segmentRepo := repository.NewSegmentRepository(app.Postgres)
	linkRepo := repository.NewSessionDocumentRepository(app.Postgres)

	aiClient := ai.NewOpenAICompatibleClient()
	embedProvider := ai.NewEmbeddingProvider(aiClient, ai.EmbeddingConfig{
		BaseURL:   app.Config.Embedding.BaseURL,
		APIKey:    app.Config.Embedding.APIKey,
		Model:     app.Config.Embedding.Model,
		Dimension: app.Config.Embedding.Dimension,
	})
	genProvider := ai.NewGenerationProvider(aiClient, ai.GenerationConfig{
		BaseURL: app.Config.Generation.BaseURL,
		APIKey:  app.Config.Generation.APIKey,
		Model:   app.Config.Generation.Model,
	})
	tavily := websearch.NewTavilyClient(websearch.Config{
		BaseURL:    app.Config.WebSearch.BaseURL,
		APIKey:     app.Config.WebSearch.APIKey,
		MaxResults: app.Config.WebSearch.MaxResults,
	})

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	turnPublisher := rabbitmqClient.NewTurnPublisher(app.MQConn, app.Config.RabbitMQ.TurnPersistQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(appsvc.ChatServiceDeps{
		Sessions:  sessionRepo,
		Messages:  messageRepo,
		Links:     linkRepo,
		Segments:  segmentRepo,
		Embedder:  embedProvider,
		Generator: genProvider,
		Searcher:  tavily,
		Turns:     turnPublisher,
		History:   historyCache,
		Config: appsvc.ChatConfig{
			TopN:          app.Config.Retrieval.TopK,
			HistoryLimit:  app.Config.Retrieval.HistoryLimit,
			FlushBatch:    app.Config.Retrieval.FlushBatch,
			StreamTimeout: time.Duration(app.Config.Generation.TimeoutSeconds) * time.Second,
		},
		Log: app.Log,
	})
	ingestService := appsvc.NewIngestService(
		documentRepo,
		linkRepo,
		sessionRepo,
		segmentRepo,
		embedProvider,
		appsvc.IngestConfig{
			ChunkSize:    app.Config.Retrieval.ChunkSize,
			ChunkOverlap: app.Config.Retrieval.ChunkOverlap,
		},
		app.Log,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	documentHandler := handler.NewDocumentHandler(ingestService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/stream", chatHandler.StreamChat)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/sessions/:id", chatHandler.GetSession)
	chatGroup.PATCH("/sessions/:id", chatHandler.RenameSession)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.GET("/sessions/:id/documents", documentHandler.ListForSession)
	chatGroup.POST("/sessions/:id/documents", documentHandler.Link)
	chatGroup.DELETE("/sessions/:id/documents/:document_id", documentHandler.Unlink)

	docGroup := v1.Group("/documents")
	docGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)

	return router
}
