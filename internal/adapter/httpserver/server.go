// Package httpserver exposes the read and engagement surface over echo.
// Authentication is an upstream gateway concern; the requester identity
// arrives as the X-User-ID header.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/castline/castline/internal/domain"
)

// streamService is the slice of the application layer the HTTP surface
// needs.
type streamService interface {
	ListLive(ctx context.Context, filter domain.ListFilter, page domain.Page, requesterID string) (*domain.StreamPage, error)
	Like(ctx context.Context, streamID, userID string) error
	Unlike(ctx context.Context, streamID, userID string) error
	EditCategories(ctx context.Context, streamID string, added, removed []string) error
	Delete(ctx context.Context, streamID string) error
	Stats(ctx context.Context) (*domain.StreamStats, error)
}

type Server struct {
	echo    *echo.Echo
	port    string
	streams streamService
	mongo   *mongo.Client
	redis   *goredis.Client
}

func NewServer(port string, streams streamService, mongoClient *mongo.Client, redisClient *goredis.Client) *Server {
	s := &Server{
		echo:    echo.New(),
		port:    port,
		streams: streams,
		mongo:   mongoClient,
		redis:   redisClient,
	}
	s.echo.HideBanner = true
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())

	s.registerHealthRoutes()

	api := s.echo.Group("/api")
	api.GET("/streams", s.handleListStreams)
	api.GET("/streams/stats", s.handleStreamStats)
	api.POST("/streams/:id/like", s.handleLikeStream)
	api.DELETE("/streams/:id/like", s.handleUnlikeStream)
	api.PATCH("/streams/:id/categories", s.handleEditCategories)
	api.DELETE("/streams/:id", s.handleDeleteStream)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}

func (s *Server) Start() error {
	return s.echo.Start(":" + s.port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
