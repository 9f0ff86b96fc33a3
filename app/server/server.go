package server

import (
	"context"
	"net/http"
	"time"

	"reelforge/app/config"
	"reelforge/app/database"
	"reelforge/app/handler"
	"reelforge/app/logger"
	"reelforge/app/middleware"
	"reelforge/app/progress"
	"reelforge/app/queue"
	"reelforge/app/service"
	"reelforge/app/tasks"

	"github.com/gin-gonic/gin"
)

// progressTTL is how long the hub caches a task's latest progress value.
const progressTTL = 24 * time.Hour

// Server is the HTTP server plus the task pipeline behind it.
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	hub         *progress.Hub
	dispatcher  *queue.Dispatcher
	coordinator *queue.Coordinator
	recovery    *queue.Recovery
}

// New creates a Server instance with the full pipeline wired up.
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	db := database.GetDB()
	hub := progress.NewHub(log, progressTTL)
	taskRouter := queue.NewRouter()
	registry := queue.NewRegistry()

	dispatcher := queue.NewDispatcher(db, log, registry, taskRouter, hub, queue.Options{
		Queues: cfg.Queues,
		Policy: queue.PolicyFromConfig(cfg.Retry),
	})
	coordinator := queue.NewCoordinator(db, log, dispatcher)
	recovery := queue.NewRecovery(db, log, hub, dispatcher, cfg.Sweep)

	clients := service.NewClients(cfg, log)
	tasks.RegisterAll(registry, clients, recovery, log)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:      cfg,
		Logger:      log,
		hub:         hub,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		recovery:    recovery,
	}

	// Set up the routes
	s.setupRoutes()

	return s
}

// Start launches the worker pools, the recovery sweeps, and the HTTP
// listener.
func (s *Server) Start() error {
	if err := s.dispatcher.Start(); err != nil {
		return err
	}
	if err := s.recovery.Start(); err != nil {
		return err
	}

	s.Logger.Infof("starting server on port %s", s.Config.Server.Port)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting work, waits for in-flight tasks, and closes the
// listener. Tasks still ACTIVE after the context expires are reclaimed on
// the next start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.recovery.Stop()
	s.dispatcher.Stop()
	s.hub.Close()

	// Close the database connection
	if err := database.Close(); err != nil {
		s.Logger.Errorf("failed to close database: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes sets up the API routes.
func (s *Server) setupRoutes() {
	// Create the handler instances
	authHandler := handler.NewAuthHandler(s.Config)
	taskHandler := handler.NewTaskHandler(s.Logger, s.dispatcher)
	workflowHandler := handler.NewWorkflowHandler(s.Logger, s.coordinator)
	progressHandler := handler.NewProgressHandler(s.Logger, s.hub)
	adminHandler := handler.NewAdminHandler(s.Config, s.Logger, s.dispatcher, s.recovery)

	// API route group
	api := s.gin.Group("/api")

	// Authentication routes (no JWT required)
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// Routes that require a valid JWT
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// Current user
		protected.GET("/me", authHandler.Me)

		// Task routes
		taskGroup := protected.Group("/tasks")
		{
			taskGroup.POST("/", taskHandler.SubmitTask)
			taskGroup.GET("/", taskHandler.ListTasks)
			taskGroup.GET("/:id", taskHandler.GetTask)
			taskGroup.POST("/:id/cancel", taskHandler.CancelTask)
		}

		// Workflow routes
		workflowGroup := protected.Group("/workflows")
		{
			workflowGroup.POST("/", workflowHandler.CreateWorkflow)
			workflowGroup.POST("/reel", workflowHandler.CreateReel)
			workflowGroup.GET("/", workflowHandler.ListWorkflows)
			workflowGroup.GET("/:id", workflowHandler.GetWorkflow)
		}

		// Queue stats
		protected.GET("/queues/stats", taskHandler.GetQueueStats)

		// Live progress
		progressGroup := protected.Group("/progress")
		{
			progressGroup.GET("/stream", progressHandler.Stream)
			progressGroup.GET("/:id", progressHandler.GetLatest)
		}

		// Administration
		admin := protected.Group("/admin")
		{
			admin.POST("/requeue-failed", adminHandler.RequeueFailed)
			admin.POST("/cleanup-stuck", adminHandler.CleanupStuck)
			admin.POST("/queues/:queue/scale", adminHandler.ScaleQueue)
		}
	}
}
