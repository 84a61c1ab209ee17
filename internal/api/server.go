// Package api implements the admin HTTP surface: health, login, stats, and
// manual compaction. It never touches the engine directly — every handler
// calls a *lsm.Tree method, so it shares the same correctness guarantees
// and the same lock as the TCP request server.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nyasuto/strata/internal/lsm"
)

// Server is the admin HTTP API.
type Server struct {
	tree   *lsm.Tree
	router *gin.Engine
	auth   *AuthManager
	http   *http.Server
}

// Config holds the admin credentials and JWT signing secret.
type Config struct {
	AdminUser     string
	AdminPassword string
	JWTSecret     string
}

// NewServer builds the admin API over tree.
func NewServer(tree *lsm.Tree, cfg Config) *Server {
	auth := NewAuthManager(cfg.AdminUser, cfg.AdminPassword, cfg.JWTSecret)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		tree:   tree,
		router: router,
		auth:   auth,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.POST("/login", s.login)

		admin := v1.Group("/")
		admin.Use(s.AuthMiddleware())
		{
			admin.GET("/stats", s.getStats)
			admin.POST("/admin/compact", s.compact)
		}
	}
}

// Start binds addr and serves in the background. Use Stop to shut down.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	s.http = &http.Server{Handler: s.router}
	go func() {
		_ = s.http.Serve(listener)
	}()
	s.http.Addr = listener.Addr().String()
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Addr returns the bound address, valid after Start returns successfully.
func (s *Server) Addr() string {
	if s.http == nil {
		return ""
	}
	return s.http.Addr
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "strata-server",
	})
}

func (s *Server) getStats(c *gin.Context) {
	s.successResponse(c, http.StatusOK, s.tree.Stats(), 0)
}

func (s *Server) compact(c *gin.Context) {
	if err := s.tree.Compact(); err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "COMPACT_FAILED", err.Error())
		return
	}
	s.successResponse(c, http.StatusOK, s.tree.Stats(), 0)
}
