package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/middleware"
)

// Server is the fern HTTP API
type Server struct {
	cfg    *config.Config
	app    *App
	echo   *echo.Echo
	logger ectologger.Logger
}

// New creates the server. The app must be started before routes are served.
func New(cfg *config.Config, app *App, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	return &Server{
		cfg:    cfg,
		app:    app,
		echo:   e,
		logger: logger,
	}
}

// Echo exposes the router, mainly for tests
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Routes installs middleware and every route. verifier is required when auth is enabled.
func (s *Server) Routes(verifier middleware.TokenVerifier, jobService handlers.JobService) {
	e := s.echo

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(s.cfg.AppName))
	// identity headers are only trusted when token auth is off
	e.Use(middleware.Context(!s.cfg.AuthEnabled))
	e.Use(middleware.Logger(s.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.cfg.AllowOrigins,
		AllowMethods: s.cfg.AllowMethods,
	}))

	s.app.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if s.cfg.AuthEnabled {
		api.Use(middleware.Authentication(s.logger, verifier, s.cfg.AuthPlatformRole))
	} else {
		s.logger.Warnf("AUTH_ENABLED=false: identity headers %s, %s and %s are trusted from any client. Local development only",
			middleware.HeaderUserID, middleware.HeaderTenantID, middleware.HeaderPlatform)
	}

	handlers.NewJobHandler(jobService).RegisterRoutes(api)
}

// Run starts the app, serves HTTP until ctx is cancelled, then shuts everything down
func (s *Server) Run(ctx context.Context) error {
	if err := s.app.Start(ctx); err != nil {
		return err
	}

	var verifier middleware.TokenVerifier
	if s.cfg.AuthEnabled {
		v, err := middleware.NewOIDCVerifier(ctx, s.cfg.AuthIssuerURL, s.cfg.AuthClientID)
		if err != nil {
			return s.abort(err)
		}
		verifier = v
	}
	s.Routes(verifier, s.app.Jobs)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.echo,
		ReadTimeout:       time.Duration(s.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.WithContext(ctx).Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	s.app.Health.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down")
	case runErr = <-serveErr:
		s.logger.WithError(runErr).Error("HTTP server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.app.Health.SetReady(false)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Failed to shut down HTTP server")
	}
	if err := s.app.Stop(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Failed to stop dependencies")
	}

	return runErr
}

func (s *Server) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := s.app.Stop(ctx); stopErr != nil {
		s.logger.WithError(stopErr).Error("Failed to stop dependencies")
	}
	return err
}
