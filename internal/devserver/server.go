// Package devserver is a small stand-in for the document chat backend. It
// speaks the same REST contract so the client can run end to end without the
// real RAG service: answers are excerpts picked by word overlap, not model
// output.
package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/internal/storage"
)

// Config tunes the development backend.
type Config struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ProcessingDelay time.Duration
	MaxFileSize     int64
	MaxRooms        int
	MaxDocsPerRoom  int
	RegisterPerDay  int
	UploadsPerDay   int
	QuestionsPerDay int
}

func DefaultConfig() Config {
	return Config{
		JWTSecret:       "docchat-dev-secret",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * day,
		ProcessingDelay: 4 * time.Second,
		MaxFileSize:     2 * 1024 * 1024,
		MaxRooms:        2,
		MaxDocsPerRoom:  3,
		RegisterPerDay:  2,
		UploadsPerDay:   5,
		QuestionsPerDay: 10,
	}
}

// Server holds handler dependencies.
type Server struct {
	cfg      Config
	store    *storage.Store
	tokens   *tokenIssuer
	metrics  *Metrics
	logger   *slog.Logger
	register *RateLimiter
	uploads  *RateLimiter
	chat     *RateLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store *storage.Store, cfg Config, logger *slog.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaults.JWTSecret
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaults.AccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaults.RefreshTokenTTL
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaults.MaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		store:    store,
		tokens:   newTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		metrics:  NewMetrics(),
		logger:   logger,
		register: NewRateLimiter(cfg.RegisterPerDay, day),
		uploads:  NewRateLimiter(cfg.UploadsPerDay, day),
		chat:     NewRateLimiter(cfg.QuestionsPerDay, day),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(s.metrics))

	v1 := router.Group("/api/v1")
	auth := v1.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)
	auth.GET("/me", s.requireAuth(), s.handleMe)

	rooms := v1.Group("/rooms", s.requireAuth())
	rooms.GET("", s.handleListRooms)
	rooms.POST("", s.handleCreateRoom)
	rooms.GET("/:id", s.handleGetRoom)
	rooms.PUT("/:id", s.handleUpdateRoom)
	rooms.DELETE("/:id", s.handleDeleteRoom)

	docs := v1.Group("/documents", s.requireAuth())
	docs.POST("/upload/:roomID", s.handleUpload)
	docs.GET("/room/:roomID", s.handleListDocuments)
	docs.DELETE("/:id", s.handleDeleteDocument)

	chat := v1.Group("/chat", s.requireAuth())
	chat.POST("/:roomID", s.handleAsk)
	chat.GET("/history/:roomID", s.handleHistory)

	return router
}

// Close stops pending processing jobs and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Metrics exposes the counters, mainly for tests.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// validationError mimics FastAPI's 422 body shape.
func validationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"detail": []gin.H{{"loc": []string{"body"}, "msg": err.Error(), "type": "value_error"}},
	})
}

func (s *Server) rateLimited(c *gin.Context, limiter *RateLimiter, key string) bool {
	if limiter.Allow(key) {
		return false
	}
	s.metrics.IncRateLimited()
	c.Header("Retry-After", "86400")
	c.String(http.StatusTooManyRequests, "Rate limit exceeded: %d per 1 day", limiter.Limit())
	c.Abort()
	return true
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op, "error", err)
	detail(c, http.StatusInternalServerError, "internal server error")
}
