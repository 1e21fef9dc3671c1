package server

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/config"
	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/internal/ingest"
	"github.com/scholartech/scholargraph/internal/tools"
	"github.com/scholartech/scholargraph/pkg/logging"
)

// HTTPServer serves the protocol endpoint and the health endpoint over
// fiber, applying host, origin and bearer-token admission before dispatch.
type HTTPServer struct {
	cfg        *config.Config
	dispatcher *tools.Dispatcher
	sessions   *SessionManager
	aggregator *graph.Aggregator
	engine     *ingest.Engine
	app        *fiber.App
	startedAt  time.Time
	log        zerolog.Logger
}

// NewHTTPServer wires the fiber app. The session manager is used only in
// stateful mode.
func NewHTTPServer(cfg *config.Config, dispatcher *tools.Dispatcher, aggregator *graph.Aggregator, engine *ingest.Engine) *HTTPServer {
	s := &HTTPServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		sessions:   NewSessionManager(dispatcher, cfg.SessionTTL, cfg.MaxSessions),
		aggregator: aggregator,
		engine:     engine,
		startedAt:  time.Now(),
		log:        logging.GetLogger("server.http"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               ServerName,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			s.log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled transport error")
			return c.Status(fiber.StatusInternalServerError).JSON(internalErrorEnvelope())
		},
	})
	s.app.Use(recover.New())
	s.app.Use(s.admission)

	s.app.Get(cfg.HealthPath, s.handleHealth)
	s.app.Options(cfg.EndpointPath, s.handlePreflight)
	s.app.Post(cfg.EndpointPath, s.handlePost)
	s.app.Get(cfg.EndpointPath, s.handleGet)
	s.app.Delete(cfg.EndpointPath, s.handleDelete)

	return s
}

// Sessions exposes the session table (health endpoint, tests).
func (s *HTTPServer) Sessions() *SessionManager { return s.sessions }

// App exposes the underlying fiber app for in-process testing.
func (s *HTTPServer) App() *fiber.App { return s.app }

// Listen blocks serving the configured address.
func (s *HTTPServer) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info().Str("addr", addr).Str("endpoint", s.cfg.EndpointPath).Msg("HTTP transport listening")
	return s.app.Listen(addr)
}

// Shutdown closes all sessions and stops the listener.
func (s *HTTPServer) Shutdown() error {
	s.sessions.CloseAll()
	return s.app.Shutdown()
}

// admission enforces host allow-listing, origin checks with CORS headers,
// and the bearer token. OPTIONS preflights skip the auth check.
func (s *HTTPServer) admission(c *fiber.Ctx) error {
	// Vary on Origin regardless of whether one was supplied.
	c.Set(fiber.HeaderVary, "Origin")

	if !s.hostAllowed(c.Hostname()) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "host not allowed"})
	}

	origin := c.Get(fiber.HeaderOrigin)
	if origin != "" {
		if !s.originAllowed(origin) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "origin not allowed"})
		}
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, DELETE, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, "+SessionHeader)
		c.Set(fiber.HeaderAccessControlExposeHeaders, SessionHeader)
	}

	if c.Method() == fiber.MethodOptions {
		return c.Next()
	}

	if s.cfg.APIKey != "" {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+s.cfg.APIKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid bearer token"})
		}
	}
	return c.Next()
}

func (s *HTTPServer) hostAllowed(host string) bool {
	host = stripPort(host)
	if len(s.cfg.AllowedHosts) == 0 {
		if s.cfg.LoopbackBind() {
			return isLoopbackHost(host)
		}
		return true
	}
	for _, allowed := range s.cfg.AllowedHosts {
		if strings.EqualFold(stripPort(allowed), host) {
			return true
		}
	}
	return false
}

func (s *HTTPServer) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		if !s.cfg.LoopbackBind() {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return isLoopbackHost(stripPort(u.Host))
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func (s *HTTPServer) handleHealth(c *fiber.Ctx) error {
	jobs, documents := s.engine.Counts()
	return c.JSON(fiber.Map{
		"status":        "ok",
		"service":       ServerName,
		"version":       ServerVersion,
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"openSessions":  s.sessions.Len(),
		"jobs":          jobs,
		"documents":     documents,
		"cacheEntries":  s.aggregator.CacheLen(),
	})
}

func (s *HTTPServer) handlePreflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// handleGet rejects stream requests; this server only speaks request/response.
func (s *HTTPServer) handleGet(c *fiber.Ctx) error {
	return c.Status(fiber.StatusMethodNotAllowed).
		JSON(errorResponse(nil, codeInvalidRequest, "Streaming is not supported; use POST"))
}

func (s *HTTPServer) handlePost(c *fiber.Ctx) error {
	req, decodeErr := DecodeRequest(c.Body())
	if decodeErr != nil {
		return c.Status(fiber.StatusBadRequest).JSON(decodeErr)
	}

	core, status, errResp := s.bindSession(c, req)
	if errResp != nil {
		return c.Status(status).JSON(errResp)
	}

	resp := core.Handle(c.UserContext(), req)
	if resp == nil {
		// Notification: acknowledged without a body.
		return c.SendStatus(fiber.StatusAccepted)
	}
	return c.JSON(resp)
}

// bindSession resolves which protocol core serves this request. Stateless
// mode gets a fresh core every time; stateful mode enforces the session
// rules from the configuration.
func (s *HTTPServer) bindSession(c *fiber.Ctx, req *Request) (*Core, int, *Response) {
	if s.cfg.SessionMode != config.SessionStateful {
		return NewCore(s.dispatcher), 0, nil
	}

	s.sessions.Prune()

	id := c.Get(SessionHeader)
	if id == "" {
		if !req.IsInitialize() {
			return nil, fiber.StatusBadRequest,
				errorResponse(req.ID, codeInvalidRequest, "Missing session id; send initialize first")
		}
		session := s.sessions.Create()
		c.Set(SessionHeader, session.ID)
		return session.Core, 0, nil
	}

	session := s.sessions.Touch(id)
	if session == nil {
		return nil, fiber.StatusNotFound,
			errorResponse(req.ID, codeInvalidRequest, "Unknown session id")
	}
	c.Set(SessionHeader, session.ID)
	return session.Core, 0, nil
}

func (s *HTTPServer) handleDelete(c *fiber.Ctx) error {
	if s.cfg.SessionMode != config.SessionStateful {
		return c.SendStatus(fiber.StatusNoContent)
	}
	id := c.Get(SessionHeader)
	if id == "" || !s.sessions.Delete(id) {
		return c.Status(fiber.StatusNotFound).
			JSON(errorResponse(nil, codeInvalidRequest, "Unknown session id"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
