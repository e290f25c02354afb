package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/server/internal/observability"
	apiv1 "github.com/wiesioai/wiesio/server/router/api/v1"
	"github.com/wiesioai/wiesio/store"
)

// Server serves the conversation directory API.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	apiV1Service *apiv1.APIV1Service
	listener     net.Listener
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.HTTPErrorHandler = apiv1.HTTPErrorHandler
	s.echoServer = echoServer

	metrics := observability.NewMetrics()
	echoServer.Use(middleware.Recover())
	echoServer.Use(observability.RequestLogger(slog.Default(), metrics))

	apiV1Service := apiv1.NewAPIV1Service(profile, store, metrics)
	if err := apiV1Service.RegisterRoutes(ctx, echoServer); err != nil {
		return nil, errors.Wrap(err, "failed to register api v1 routes")
	}
	s.apiV1Service = apiV1Service

	return s, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = listener

	httpServer := &http.Server{
		Handler:           s.echoServer,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.echoServer.Server = httpServer

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	go s.apiV1Service.RunCleanup(ctx)
	slog.Info("start HTTP server", slog.String("address", listener.Addr().String()))
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("server stopped properly")
}
