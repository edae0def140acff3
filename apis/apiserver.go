package apis

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tphan267/arqut-signal/pkg/api"
	"github.com/tphan267/arqut-signal/pkg/core"
	"github.com/tphan267/arqut-signal/pkg/providers"
)

// ApiServer is the local status server using Fiber
type ApiServer struct {
	app       *fiber.App
	api       fiber.Router
	coreApp   core.App
	providers *providers.Registry
	token     string
}

// New creates the status server. When token is non-empty every /api route
// requires "Authorization: Bearer <token>".
func New(p *providers.Registry, token string) *ApiServer {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	s := &ApiServer{
		app:       app,
		coreApp:   core.NewMainApp(p),
		providers: p,
		token:     token,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *ApiServer) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		s.providers.Logger().Debug("[API] %s %s -> %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	})
}

func (s *ApiServer) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	s.api = s.app.Group("/api", s.authMiddleware)
	s.api.Get("/session", s.handleSession)
}

// App returns the underlying Fiber app
func (s *ApiServer) App() *fiber.App {
	return s.app
}

// API returns the /api router services register their routes on
func (s *ApiServer) API() fiber.Router {
	return s.api
}

// Start starts the HTTP server
func (s *ApiServer) Start(addr string) error {
	s.providers.Logger().Info("[API] Listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *ApiServer) Shutdown(ctx context.Context) error {
	s.providers.Logger().Debug("[API] Shutdown requested")
	return s.app.ShutdownWithContext(ctx)
}

// authMiddleware checks the bearer token when one is configured
func (s *ApiServer) authMiddleware(c *fiber.Ctx) error {
	if s.token == "" {
		return c.Next()
	}

	token := extractToken(c)
	if token == "" {
		return api.ErrorUnauthorizedResp(c, "Missing authorization token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return api.ErrorUnauthorizedResp(c, "Invalid authorization token")
	}
	return c.Next()
}

// handleSession handles GET /api/session
func (s *ApiServer) handleSession(c *fiber.Ctx) error {
	status, err := s.coreApp.Session(c.Context())
	if errors.Is(err, core.ErrNoSession) {
		return api.ErrorUnavailableResp(c, "No signaling session")
	}
	if err != nil {
		s.providers.Logger().Error("[API] Failed to read session: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to read session")
	}
	return api.SuccessResp(c, status)
}

// handleHealth handles health checks
func (s *ApiServer) handleHealth(c *fiber.Ctx) error {
	return api.SuccessResp(c, fiber.Map{
		"status": "healthy",
	})
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// customErrorHandler handles errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusNotFound {
		return api.ErrorNotFoundResp(c, fmt.Sprintf("Cannot %s %s", c.Method(), c.Path()))
	}

	return c.Status(code).JSON(api.ApiResponse{
		Success: false,
		Error: &api.ApiError{
			Code:    code,
			Message: err.Error(),
		},
	})
}
