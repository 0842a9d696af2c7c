package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/handler"
	appmw "github.com/shinyyama/abracadabra/internal/middleware"
	"github.com/shinyyama/abracadabra/internal/repository"
	"github.com/shinyyama/abracadabra/internal/reqctx"
	"github.com/shinyyama/abracadabra/internal/service"
	"gorm.io/gorm"
)

// bodyLimit caps request bodies at the transport level. The per-image size
// shown to users is advisory and much smaller.
const bodyLimit = "32M"

type Options struct {
	Sessions    service.SessionService
	Generations repository.GenerationRepository
	// Auth is nil when firebase auth is not configured; routes are then open.
	Auth             *appmw.AuthMiddleware
	CORSOriginSuffix string
	MaxUploadBytes   int64
	SHA              string
	BuildTime        string
}

type Server struct {
	e           *echo.Echo
	generations repository.GenerationRepository
}

func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("rid", reqctx.RID(c.Request().Context())).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", echo.HeaderXRequestID},
		ExposeHeaders:    []string{echo.HeaderXRequestID, echo.HeaderContentDisposition},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(opts.CORSOriginSuffix),
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	sessionHandler := handler.NewSessionHandler(opts.Sessions, opts.MaxUploadBytes)
	optionsHandler := handler.NewOptionsHandler()

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.SHA,
			"build_time": opts.BuildTime,
		})
	})

	var protect []echo.MiddlewareFunc
	if opts.Auth != nil {
		protect = append(protect, opts.Auth.RequireAuth)
	}

	api := e.Group("/api")
	api.GET("/options", optionsHandler.List)

	api.POST("/sessions", sessionHandler.Create, protect...)
	api.GET("/sessions/:id", sessionHandler.Get, protect...)
	api.DELETE("/sessions/:id", sessionHandler.Delete, protect...)
	api.PUT("/sessions/:id/image", sessionHandler.PutImage, protect...)
	api.DELETE("/sessions/:id/image", sessionHandler.DeleteImage, protect...)
	api.GET("/sessions/:id/image", sessionHandler.GetImage, protect...)
	api.GET("/sessions/:id/image/preview", sessionHandler.ImagePreview, protect...)
	api.PATCH("/sessions/:id/settings", sessionHandler.UpdateSetting, protect...)
	api.POST("/sessions/:id/undo", sessionHandler.Undo, protect...)
	api.POST("/sessions/:id/redo", sessionHandler.Redo, protect...)
	api.GET("/sessions/:id/prompt", sessionHandler.Prompt, protect...)
	api.POST("/sessions/:id/enhance", sessionHandler.Enhance, protect...)
	api.GET("/sessions/:id/result", sessionHandler.Result, protect...)
	api.GET("/sessions/:id/result/download", sessionHandler.Download, protect...)
	api.GET("/sessions/:id/result/preview", sessionHandler.ResultPreview, protect...)
	api.POST("/sessions/:id/result/publish", sessionHandler.Publish, protect...)
	api.GET("/sessions/:id/generations", sessionHandler.Generations, protect...)

	return &Server{e: e, generations: opts.Generations}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// SetDB attaches the database once the background connect succeeds.
func (s *Server) SetDB(db *gorm.DB) {
	if s.generations != nil {
		s.generations.SetDB(db)
	}
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Request().Header.Get(echo.HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()[:8]
		}
		c.Response().Header().Set(echo.HeaderXRequestID, rid)
		req := c.Request()
		c.SetRequest(req.WithContext(reqctx.WithRID(req.Context(), rid)))
		return next(c)
	}
}

// allowOrigin accepts localhost on any port and any host ending in suffix.
func allowOrigin(suffix string) func(origin string) (bool, error) {
	suffix = strings.ToLower(suffix)
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(low)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		if suffix != "" && strings.HasSuffix(u.Hostname(), suffix) {
			return true, nil
		}
		return false, nil
	}
}
