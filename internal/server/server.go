package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sharedtodo/internal/auth"
	"sharedtodo/internal/gateway"
	"sharedtodo/internal/todo"
)

// Stores bundles the domain stores the handlers call.
type Stores struct {
	Categories *todo.CategoryStore
	Tasks      *todo.TaskStore
	Profiles   *todo.ProfileStore
}

// Server provides HTTP and websocket handlers for the to-do backend.
type Server struct {
	engine     *gin.Engine
	categories *todo.CategoryStore
	tasks      *todo.TaskStore
	profiles   *todo.ProfileStore
	verifier   *auth.Verifier
	logger     *slog.Logger
	staticDir  string
	index      string
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// New constructs the HTTP server with routes and middleware configured.
func New(stores Stores, verifier *auth.Verifier, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: requestLogFormatter,
		Output:    gin.DefaultWriter,
		SkipPaths: []string{"/api/healthz"},
	}))

	srv := &Server{
		engine:     router,
		categories: stores.Categories,
		tasks:      stores.Tasks,
		profiles:   stores.Profiles,
		verifier:   verifier,
		logger:     logger,
		staticDir:  staticDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 5 * time.Second,
		},
		pingPeriod: 30 * time.Second,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API, websocket and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/healthz", s.handleHealth)

	authed := api.Group("", auth.Middleware(s.verifier))
	{
		authed.POST("/session", s.handleSession)

		categories := authed.Group("/categories")
		{
			categories.GET("", s.handleListCategories)
			categories.POST("", s.handleCreateCategory)
			categories.GET("/shared", s.handleListShared)
			categories.POST("/reorder", s.handleReorderCategories)
			categories.POST("/join", s.handleJoin)
			categories.PUT(":id", s.handleRenameCategory)
			categories.DELETE(":id", s.handleDeleteCategory)
			categories.POST(":id/leave", s.handleLeave)
			categories.GET(":id/members", s.handleMembers)
			categories.GET(":id/tasks", s.handleListTasks)
			categories.POST(":id/tasks", s.handleCreateTask)
			categories.GET(":id/tasks/export", s.handleExportTasks)
			categories.POST(":id/tasks/import", s.handleImportTasks)
			categories.POST(":id/tasks/reorder", s.handleReorderTasks)
		}

		authed.PUT("/tasks/:id", s.handleUpdateTask)
		authed.DELETE("/tasks/:id", s.handleDeleteTask)

		live := authed.Group("/live")
		{
			live.GET("/categories", s.handleLiveCategories)
			live.GET("/shared", s.handleLiveShared)
			live.GET("/categories/:id/tasks", s.handleLiveTasks)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSession records the login: the profile is upserted and a first-time
// user gets the default category.
func (s *Server) handleSession(c *gin.Context) {
	id := identity(c)
	profile, err := s.profiles.SaveProfile(c.Request.Context(), id.Profile())
	if err != nil {
		s.fail(c, err)
		return
	}
	created, err := s.categories.EnsureDefaultCategory(c.Request.Context(), id.UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"profile": profile, "default_category_created": created})
}

// identity returns the authenticated user. Routes using it sit behind
// auth.Middleware.
func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c)
	return id
}

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	var verr *todo.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, todo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, todo.ErrAlreadyMember):
		return http.StatusConflict
	case errors.Is(err, todo.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrTooManyValues), errors.Is(err, gateway.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail responds with the status matching err.
func (s *Server) fail(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request.Context(), level, "request failed",
		slog.String("path", c.FullPath()),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
