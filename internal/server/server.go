package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/supervisor"
	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/ratelimit"
	"github.com/gearbox-hq/gearbox/internal/search"
	"github.com/gearbox-hq/gearbox/internal/storage"
)

// Server is the Gearbox HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Config holds all dependencies and settings for creating a Server.
// Optional (nil-safe): Limiter, Searcher, MCPServer.
type Config struct {
	DB         *storage.DB
	JWTMgr     *auth.JWTManager
	Supervisor *supervisor.Supervisor
	Registry   *registry.Registry
	Logger     *slog.Logger

	Limiter   ratelimit.Limiter
	Searcher  search.Searcher
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Supervisor:          cfg.Supervisor,
		Registry:            cfg.Registry,
		Searcher:            cfg.Searcher,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Per-group rate limits. Auth is keyed by IP (no claims yet); everything
	// else by org, with admins exempt.
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKey)
	apiRL := ratelimit.Middleware(cfg.Limiter, orgKeyExemptAdmin)

	adminOnly := requireRole(model.RoleAdmin)
	memberUp := requireRole(model.RoleMember)
	clientUp := requireRole(model.RoleClient)

	mux := http.NewServeMux()

	// Unauthenticated.
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Account management (admin).
	mux.Handle("POST /v1/accounts", adminOnly(http.HandlerFunc(h.HandleCreateAccount)))
	mux.Handle("GET /v1/accounts", adminOnly(http.HandlerFunc(h.HandleListAccounts)))
	mux.Handle("DELETE /v1/accounts/{account_id}", adminOnly(http.HandlerFunc(h.HandleDeleteAccount)))
	mux.Handle("GET /v1/operation-logs", adminOnly(http.HandlerFunc(h.HandleListOperationLogs)))

	// Fleet CRUD: writes need member+, reads are open to clients.
	mux.Handle("POST /v1/vehicles", apiRL(memberUp(http.HandlerFunc(h.HandleCreateVehicle))))
	mux.Handle("GET /v1/vehicles", apiRL(clientUp(http.HandlerFunc(h.HandleListVehicles))))
	mux.Handle("GET /v1/vehicles/{vehicle_id}", apiRL(clientUp(http.HandlerFunc(h.HandleGetVehicle))))
	mux.Handle("PATCH /v1/vehicles/{vehicle_id}/mileage", apiRL(memberUp(http.HandlerFunc(h.HandleUpdateVehicleMileage))))
	mux.Handle("DELETE /v1/vehicles/{vehicle_id}", adminOnly(http.HandlerFunc(h.HandleDeleteVehicle)))
	mux.Handle("GET /v1/vehicles/{vehicle_id}/assessments", apiRL(clientUp(http.HandlerFunc(h.HandleListAssessments))))

	mux.Handle("POST /v1/appointments", apiRL(memberUp(http.HandlerFunc(h.HandleCreateAppointment))))
	mux.Handle("GET /v1/appointments", apiRL(clientUp(http.HandlerFunc(h.HandleListAppointments))))
	mux.Handle("PATCH /v1/appointments/{appointment_id}/status", apiRL(memberUp(http.HandlerFunc(h.HandleUpdateAppointmentStatus))))

	mux.Handle("POST /v1/invoices", apiRL(memberUp(http.HandlerFunc(h.HandleCreateInvoice))))
	mux.Handle("GET /v1/invoices", apiRL(clientUp(http.HandlerFunc(h.HandleListInvoices))))
	mux.Handle("GET /v1/invoices/{invoice_id}", apiRL(clientUp(http.HandlerFunc(h.HandleGetInvoice))))
	mux.Handle("POST /v1/invoices/{invoice_id}/transition", apiRL(memberUp(http.HandlerFunc(h.HandleTransitionInvoice))))

	mux.Handle("POST /v1/assessments", apiRL(memberUp(http.HandlerFunc(h.HandleCreateAssessment))))

	// Orchestration (member+).
	mux.Handle("POST /v1/supervisor/run", apiRL(memberUp(http.HandlerFunc(h.HandleSupervisorRun))))
	mux.Handle("GET /v1/tools", apiRL(memberUp(http.HandlerFunc(h.HandleListTools))))
	mux.Handle("POST /v1/tools/{name}", apiRL(memberUp(http.HandlerFunc(h.HandleInvokeTool))))
	mux.Handle("GET /v1/trajectories", apiRL(memberUp(http.HandlerFunc(h.HandleListTrajectories))))
	mux.Handle("GET /v1/trajectories/{trajectory_id}", apiRL(memberUp(http.HandlerFunc(h.HandleGetTrajectory))))

	// MCP StreamableHTTP transport (member+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", memberUp(mcpHTTP))
	}

	// Middleware chain (outermost executes first):
	// request ID -> security headers -> tracing -> logging -> auth -> recovery.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// orgKeyExemptAdmin rate-limits by org and exempts admins.
func orgKeyExemptAdmin(r *http.Request) string {
	if claims, ok := ctxutil.Claims(r.Context()); ok {
		if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
			return ""
		}
		return "org:" + claims.OrgID.String()
	}
	return "ip:" + ratelimit.IPKey(r)
}

// Handler returns the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying handler set.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
