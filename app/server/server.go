package server

import (
	"context"
	"log"
	"log/slog"

	"vectorchat/app/agent"
	"vectorchat/app/api"
	"vectorchat/app/middleware"
	"vectorchat/chunker"
	"vectorchat/loader"
	"vectorchat/model"
	"vectorchat/rag"
	"vectorchat/store"
	"vectorchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    types.Config
	logger *slog.Logger
	store  *store.PostgresStore
	app    *fiber.App
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("error shutting down server", "error", err)
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	embedder := model.NewOpenRouterEmbedder(
		s.cfg.EmbeddingURL, s.cfg.APIKey, s.cfg.EmbeddingModel, s.cfg.EmbeddingDim)

	pool, err := store.NewPostgresStore(ctx, s.cfg.PostgresDSN, embedder, s.cfg.EmbeddingDim, s.cfg.EmbedDelay)
	if err != nil {
		log.Fatal("error connecting to Postgres database: ", err)
		return
	}
	s.store = pool

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
		return
	}

	docChunker := chunker.New(chunker.Options{
		TargetSize:     s.cfg.ChunkSize,
		MinChunkLength: s.cfg.MinChunkLength,
	})
	fileLoader, err := loader.New(s.cfg)
	if err != nil {
		log.Fatal("error preparing upload directory: ", err)
		return
	}

	retriever := rag.NewRetriever(embedder, pool)
	builder := rag.NewContextBuilder(retriever, s.cfg.ContextMinSimilarity)

	var (
		app          = fiber.New(config)
		checkHandler = api.NewCheckHandler()
		chatHandler  = api.NewChatHandler(builder, agent.NewClient(s.cfg), s.cfg)
		adminHandler = api.NewAdminHandler(pool, docChunker, fileLoader, retriever, embedder, s.cfg)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)
	s.app = app

	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/rag", adminHandler.HandleSelfTest)

	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Get("/models", chatHandler.HandleModels)

	apiv1.Post("/search", adminHandler.HandleSearch)
	apiv1.Get("/stats", adminHandler.HandleStats)

	apiv1.Get("/documents", adminHandler.HandleListDocuments)
	apiv1.Post("/documents", adminHandler.HandleAddDocument)
	apiv1.Delete("/documents", adminHandler.HandleClearAll)
	apiv1.Post("/documents/upload", adminHandler.HandleUpload)
	apiv1.Get("/documents/:source", adminHandler.HandleGetDocument)
	apiv1.Delete("/documents/:source", adminHandler.HandleDeleteDocument)
	apiv1.Put("/documents/:source/title", adminHandler.HandleUpdateTitle)
	apiv1.Post("/documents/:source/chunks", adminHandler.HandleAddChunk)

	apiv1.Get("/chunks/:id", adminHandler.HandleGetChunk)
	apiv1.Put("/chunks/:id", adminHandler.HandleUpdateChunk)
	apiv1.Delete("/chunks/:id", adminHandler.HandleDeleteChunk)

	if err := app.Listen(s.cfg.ListenAddr); err != nil {
		s.logger.Error("error starting server", "error", err.Error())
	}
}
