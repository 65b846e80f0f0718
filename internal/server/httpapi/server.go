// Package httpapi exposes the account service over HTTP with fiber.
package httpapi

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Options configures a Server.
type Options struct {
	Address         string
	AllowedOrigin   string
	SecretKey       string
	Metrics         *metrics.Metrics
	ShutdownTimeout time.Duration
}

type Server struct {
	app     *fiber.App
	address string
	logger  logging.Logger
	timeout time.Duration
}

// NewServer wires middleware and routes. m in opts may be nil, in which case
// /metrics is not served.
func NewServer(opts Options, h *Handler, logger logging.Logger) *Server {
	logger = logger.With("module", "http_server")

	app := fiber.New(fiber.Config{
		AppName:               "gophauth",
		ErrorHandler:          errorHandler,
		// values from BodyParser and Params outlive the request in stores
		// and the mail queue
		Immutable:             true,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	if opts.Metrics != nil {
		app.Use(observeHTTP(opts.Metrics))
	}
	app.Use(accessLog(logger))
	app.Use(recover.New())
	app.Use(cors.New(corsConfig(opts.AllowedOrigin)))

	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("Hello, World!") })
	app.Get("/health-checkup", func(c *fiber.Ctx) error { return c.SendString("server is up and running!") })
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	gate := authMiddleware([]byte(opts.SecretKey))

	users := app.Group("/api/v1/users")
	users.Post("/register", h.Register)
	users.Post("/login", h.Login)
	users.Get("/verify/:token", h.VerifyEmail)
	users.Get("/profile", gate, h.Profile)
	users.Get("/logout", gate, h.Logout)
	users.Post("/forgot-password", h.ForgotPassword)
	users.Post("/reset-password/:token", h.ResetPassword)

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Server{app: app, address: opts.Address, logger: logger, timeout: timeout}
}

// corsConfig allows credentials for an explicit origin only; fiber refuses
// credentials with a wildcard.
func corsConfig(origin string) cors.Config {
	cfg := cors.Config{
		AllowOrigins: origin,
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete, fiber.MethodOptions, fiber.MethodPut, fiber.MethodPatch}, ","),
		AllowHeaders: "Content-Type, Authorization",
	}
	if origin == "" || origin == "*" {
		cfg.AllowOrigins = "*"
		return cfg
	}
	cfg.AllowCredentials = true
	return cfg
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
		errCh <- s.app.Listener(listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	if err := s.app.ShutdownWithTimeout(s.timeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
