// Package control exposes the agent to the embedding UI shell over a
// loopback HTTP API: the shell observes session state and issues the
// commands a user can trigger, and it forwards deep links and lifecycle
// transitions the OS delivers to it.
package control

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fieldnote/agent/internal/config"
)

type Server struct {
	engine       *gin.Engine
	server       *http.Server
	sessions     SessionController
	avatars      AvatarResolver
	deepLinks    DeepLinkSink
	lifecycle    LifecycleSink
	watchTimeout time.Duration
	log          zerolog.Logger
}

func NewServer(
	cfg *config.AppConfig,
	log zerolog.Logger,
	sessions SessionController,
	avatars AvatarResolver,
	deepLinks DeepLinkSink,
	lifecycle LifecycleSink,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true

	logger := log.With().Str("component", "control").Logger()
	engine.Use(
		requestID(),
		accessLog(logger),
		recovery(logger),
	)

	s := &Server{
		engine:       engine,
		sessions:     sessions,
		avatars:      avatars,
		deepLinks:    deepLinks,
		lifecycle:    lifecycle,
		watchTimeout: cfg.Control.WatchTimeout,
		log:          logger,
	}
	s.routes(engine.Group("/api"))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Control.Host, cfg.Control.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
		IdleTimeout:  cfg.Control.IdleTimeout,
	}

	return s
}

func (s *Server) routes(router *gin.RouterGroup) {
	v1 := router.Group("/v1")
	{
		v1.GET("/healthz", s.health)

		v1.GET("/session", s.getSession)
		v1.GET("/session/watch", s.watchSession)
		v1.POST("/session/refresh", s.refresh)
		v1.POST("/session/ack-logout-reason", s.ackLogoutReason)
		v1.GET("/session/notices", s.nextNotice)

		auth := v1.Group("/auth")
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
		auth.POST("/logout", s.logout)
		auth.POST("/external", s.externalLogin)

		v1.POST("/deeplink", s.deepLink)
		v1.POST("/lifecycle", s.lifecycleTransition)
	}
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("control server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("control server shutting down")
	return s.server.Shutdown(ctx)
}
