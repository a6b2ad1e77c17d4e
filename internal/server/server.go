package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	engine    *engine.Engine
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	logger    *zap.Logger
	startTime time.Time
}

func New(s *store.SQLiteStore, eng *engine.Engine, port int, tokenFile string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &Server{
		store:     s,
		engine:    eng,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints, hit from visitor page loads
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/assign", s.handleAssign)
	s.router.HandleFunc("/api/convert", s.handleConvert)

	// Admin endpoints (protected)
	s.router.Handle("/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
	s.router.Handle("/api/experiments/", s.authMiddleware(http.HandlerFunc(s.handleExperiment)))
	s.router.Handle("/dashboard", s.authMiddleware(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("/dashboard/experiment/", s.authMiddleware(http.HandlerFunc(s.handleDashboardExperiment)))
}

func (s *Server) Start() error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("server listening",
		zap.String("addr", addr),
		zap.String("dashboard", fmt.Sprintf("http://localhost:%d/dashboard?token=%s", s.port, s.token)))

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a fixed token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
