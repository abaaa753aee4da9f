package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"chesssync/internal/server/admin"
	"chesssync/internal/server/core"
	"chesssync/internal/server/service"
	"chesssync/internal/server/storage"
)

const (
	defaultRateLimit = 10 // req/sec
	loginRateLimit   = 10 // req/min
)

type AppConfig struct {
	Dev         bool
	RateLimit   int    // Requests per second per IP, doubled in dev mode
	CORSOrigins string // Comma separated, "*" for any
	AccessLog   bool
}

// HTTPHandler serves the chess API on top of the service
type HTTPHandler struct {
	svc    *service.Service
	auth   *admin.Authenticator
	logger *zap.Logger
}

func NewHTTPHandler(svc *service.Service, auth *admin.Authenticator, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, auth: auth, logger: logger.With(zap.String("component", "http"))}
}

func NewFiberApp(svc *service.Service, auth *admin.Authenticator, cfg AppConfig, zl *zap.Logger) *fiber.App {
	h := NewHTTPHandler(svc, auth, zl)

	app := fiber.New(fiber.Config{
		ErrorHandler:          h.customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          service.WaitTimeout + 10*time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	origins := cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	chess := app.Group("/api/v1/chess")

	maxReq := cfg.RateLimit
	if maxReq <= 0 {
		maxReq = defaultRateLimit
	}
	if cfg.Dev {
		maxReq *= 2
	}
	chess.Use(limiter.New(limiter.Config{
		Max:          maxReq,
		Expiration:   1 * time.Second,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))
	chess.Use(contentTypeValidator)

	chess.Get("/state", h.GetState)
	chess.Get("/board", h.GetBoard)
	chess.Post("/move", validationMiddleware, h.SubmitMove)
	chess.Put("/move", h.requireAdmin, validationMiddleware, h.SubmitAdminMove)

	// Login: 10 req/min per IP
	chess.Post("/admin/login", limiter.New(limiter.Config{
		Max:          loginRateLimit,
		Expiration:   1 * time.Minute,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d login attempts per minute allowed", loginRateLimit),
			})
		},
	}), validationMiddleware, h.Login)
	chess.Post("/admin/verify", validationMiddleware, h.Verify)
	chess.Post("/admin/logout", h.requireAdmin, h.Logout)

	return app
}

// clientKey keys rate limits by the first X-Forwarded-For hop or the peer IP
func clientKey(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return c.IP()
}

// contentTypeValidator ensures POST and PUT requests carry JSON
func contentTypeValidator(c *fiber.Ctx) error {
	method := c.Method()
	if method == fiber.MethodPost || method == fiber.MethodPut {
		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func (h *HTTPHandler) customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	} else {
		h.logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(code).JSON(response)
}

// writeError maps service, admin and storage errors to API errors
func (h *HTTPHandler) writeError(c *fiber.Ctx, err error) error {
	status, resp := fiber.StatusInternalServerError, core.ErrorResponse{
		Error:   "internal server error",
		Code:    core.ErrInternalError,
		Details: err.Error(),
	}

	switch {
	case errors.Is(err, storage.ErrPersistence):
		status, resp.Error, resp.Code = fiber.StatusServiceUnavailable, "game state could not be saved", core.ErrPersistenceFailed
	case errors.Is(err, service.ErrStaleState):
		status, resp.Error, resp.Code = fiber.StatusConflict, "game state changed, refresh and retry", core.ErrStaleState
	case errors.Is(err, service.ErrInvalidMove):
		status, resp.Error, resp.Code = fiber.StatusBadRequest, "invalid move", core.ErrInvalidMove
	case errors.Is(err, service.ErrGameOver):
		status, resp.Error, resp.Code = fiber.StatusBadRequest, "game is over", core.ErrGameOver
	case errors.Is(err, service.ErrMissingSquares):
		status, resp.Error, resp.Code = fiber.StatusBadRequest, "from and to are required", core.ErrInvalidRequest
	case errors.Is(err, service.ErrEngine):
		status, resp.Error, resp.Code = fiber.StatusInternalServerError, "rules engine failure", core.ErrEngineError
	case errors.Is(err, admin.ErrInvalidToken):
		status, resp.Error, resp.Code = fiber.StatusUnauthorized, "invalid or expired token", core.ErrUnauthorized
	case errors.Is(err, admin.ErrInvalidPassword):
		status, resp.Error, resp.Code, resp.Details = fiber.StatusUnauthorized, "invalid password", core.ErrUnauthorized, ""
	case errors.Is(err, admin.ErrNotConfigured):
		status, resp.Error, resp.Code, resp.Details = fiber.StatusInternalServerError, "admin login not configured", core.ErrAuthNotConfigured, ""
	}

	if status >= fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(resp)
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(core.HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Unix(),
		Storage: h.svc.StorageHealth(c.Context()),
	})
}
