package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"ragstack/internal/answer"
	appsvc "ragstack/internal/app"
	"ragstack/internal/bootstrap"
	"ragstack/internal/platform/rabbitmq"
	"ragstack/internal/repository"
	"ragstack/internal/transport/http/handler"
	"ragstack/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	instanceRepo := repository.NewRAGInstanceRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)

	answerPipeline := answer.NewPipeline(
		app.AI,
		app.Vectors,
		app.AI,
		nil,
		answer.Config{
			MaxContextChars: app.Config.RAG.MaxContextChars,
			MaxAttempts:     app.Config.RAG.LLMMaxAttempts,
			BackoffBase:     2 * time.Second,
			BackoffCap:      10 * time.Second,
		},
		app.Logger,
	)
	publisher := rabbitmq.NewIngestPublisher(app.MQConn, app.Config.RabbitMQ.IngestQueue)

	ragService := appsvc.NewRAGService(
		instanceRepo,
		documentRepo,
		app.Files,
		app.Vectors,
		answerPipeline,
		app.AnswerCache,
		publisher,
		appsvc.InstanceDefaults{
			EmbeddingModel: app.Config.LLM.EmbeddingModel,
			LLMModel:       app.Config.LLM.Model,
			ChunkSize:      app.Config.RAG.ChunkSize,
			ChunkOverlap:   app.Config.RAG.ChunkOverlap,
			TopK:           app.Config.RAG.TopK,
		},
		app.Logger,
	)

	authHandler := handler.NewAuthHandler(authService)
	ragHandler := handler.NewRAGHandler(ragService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	ragGroup := v1.Group("/rag")
	ragGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	ragGroup.POST("/instances", ragHandler.CreateInstance)
	ragGroup.GET("/instances", ragHandler.ListInstances)
	ragGroup.GET("/instances/:id", ragHandler.GetInstance)
	ragGroup.DELETE("/instances/:id", ragHandler.DeleteInstance)
	ragGroup.POST("/instances/:id/documents", ragHandler.UploadDocuments)
	ragGroup.GET("/instances/:id/documents", ragHandler.ListDocuments)
	ragGroup.POST("/instances/:id/ask", ragHandler.Ask)
	ragGroup.GET("/documents/:id", ragHandler.GetDocument)

	return router
}
