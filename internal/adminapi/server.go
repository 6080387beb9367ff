package adminapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/sbsk/fieldledger/internal/user"
)

const requestIDHeader = "X-Request-ID"

// Pinger reports store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the Fiber application serving the operator API.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and wires its routes.
func New(addr string, users *user.Service, store Pinger, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "fieldledger-admin",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	registerHealthRoute(app, store)
	registerUserRoutes(app.Group("/api/v1"), users, log)

	return &Server{app: app, addr: addr}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestID ensures each request has a stable identifier for tracing.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			c.Set(requestIDHeader, reqID)
		}
		c.Locals(requestIDHeader, reqID)
		return c.Next()
	}
}
