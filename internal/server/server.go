// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cvrag/internal/config"
	"cvrag/internal/domain"
	"cvrag/internal/vectorstore"
)

const apology = "Sorry, I encountered an error while processing your message. Please try again."

// Chatter answers one chat request.
type Chatter interface {
	Handle(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// Sessions is the subset of the session store used by the endpoints.
type Sessions interface {
	Reset(id string) bool
	ListActive() []string
	Len() int
}

// IndexStatus reports on the vector index; *vectorstore.Selection implements it.
type IndexStatus interface {
	Status(ctx context.Context) vectorstore.Status
}

// Options carries what the metadata and health endpoints report.
type Options struct {
	Server             config.ServerConfig
	App                config.AppInfoConfig
	Owner              string
	Summary            string
	SampleQuestions    []string
	LLMProvider        string
	LLMConfigured      bool
	Embedder           string
	EmbedderConfigured bool
}

type Server struct {
	echo     *echo.Echo
	chat     Chatter
	sessions Sessions
	index    IndexStatus
	opts     Options
	metrics  *Metrics
}

func New(chat Chatter, sessions Sessions, index IndexStatus, opts Options) *Server {
	s := &Server{
		echo:     echo.New(),
		chat:     chat,
		sessions: sessions,
		index:    index,
		opts:     opts,
		metrics:  NewMetrics(func() float64 { return float64(sessions.Len()) }),
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: shortuuid.New}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("ip", v.RemoteIP).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(corsConfig(opts.Server.AllowedOrigins)))
	if opts.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.Server.BodyLimit))
	}

	chatMW := []echo.MiddlewareFunc{}
	if opts.Server.RateLimit > 0 {
		chatMW = append(chatMW, rateLimiter(opts.Server.RateLimit, opts.Server.RateBurst))
	}
	e.POST("/chat", s.handleChat, chatMW...)
	e.GET("/sample-questions", s.handleSampleQuestions)
	e.GET("/health", s.handleHealth)
	e.GET("/active-sessions", s.handleActiveSessions)
	e.POST("/reset-session", s.handleResetSession)
	e.GET("/", s.handleRoot)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func corsConfig(origins []string) middleware.CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: !wildcard,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}
}

func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	if burst <= 0 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, id string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, slow down")
		},
	})
}

// errorHandler maps the error taxonomy to {"detail": ...} bodies. Upstream
// details are logged, never returned.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	detail := "Internal server error"
	var (
		ve *domain.ValidationError
		ue *domain.UpstreamError
		he *echo.HTTPError
	)
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		detail = ve.Reason
	case errors.As(err, &ue):
		detail = apology
		s.metrics.upstreamErrors.WithLabelValues(ue.Op).Inc()
	case errors.As(err, &he):
		code = he.Code
		detail = fmt.Sprint(he.Message)
	}
	req := c.Request()
	ev := log.Warn()
	if code >= 500 {
		ev = log.Error()
	}
	ev.Int("status", code).Str("method", req.Method).Str("path", req.URL.Path).Str("ip", c.RealIP()).Err(err).Msg("request failed")
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"detail": strings.TrimSpace(detail)})
}
