package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/customer"
	"github.com/dukerupert/intake/internal/eligibility"
	"github.com/dukerupert/intake/internal/employee"
	"github.com/dukerupert/intake/internal/handler"
	"github.com/dukerupert/intake/internal/household"
	"github.com/dukerupert/intake/internal/lock"
	"github.com/dukerupert/intake/internal/middleware"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/settings"
	"github.com/dukerupert/intake/internal/store"
	"github.com/dukerupert/intake/internal/visits"
	"github.com/dukerupert/intake/internal/voucher"
	ws "github.com/dukerupert/intake/internal/websocket"
)

type Config struct {
	JWTSecret      []byte
	TokenTTL       time.Duration
	BcryptCost     int
	AccessFailOpen bool
	TrustProxy     bool
	WSOrigins      []string
}

type Server struct {
	db            *sql.DB
	cfg           Config
	hub           *ws.Hub
	employees     *employee.Service
	settingsStore *store.SettingsStore
	eligibilityH  *handler.EligibilityHandler
	visitH        *handler.VisitHandler
	voucherH      *handler.VoucherHandler
	customerH     *handler.CustomerHandler
	employeeH     *handler.EmployeeHandler
	settingsH     *handler.SettingsHandler
	authH         *handler.AuthHandler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, hub *ws.Hub, locker lock.Locker, auditLog *audit.Logger, logger *slog.Logger) *Server {
	customerStore := store.NewCustomerStore(db)
	householdStore := store.NewHouseholdStore(db)
	visitStore := store.NewVisitStore(db)
	settingsStore := store.NewSettingsStore(db)
	auditStore := store.NewAuditStore(db)

	engine := eligibility.NewEngine(customerStore, household.NewResolver(householdStore), visitStore, logger)
	visitSvc := visits.NewService(db, engine, locker, auditLog, logger)
	voucherSvc := voucher.NewService(db, visitSvc, auditLog, logger)
	customerSvc := customer.NewService(db, auditLog, logger)
	employeeSvc := employee.NewService(db, auditLog, cfg.BcryptCost, logger)

	policyFn := func(r *http.Request) (policy.Policy, error) {
		return visitSvc.Policy(r.Context())
	}
	httpLogger := logger.With("component", "http")

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		employees:     employeeSvc,
		settingsStore: settingsStore,
		eligibilityH:  handler.NewEligibilityHandler(visitSvc, httpLogger),
		visitH:        handler.NewVisitHandler(visitSvc, visitStore, httpLogger),
		voucherH:      handler.NewVoucherHandler(voucherSvc, policyFn, httpLogger),
		customerH:     handler.NewCustomerHandler(customerSvc, policyFn, httpLogger),
		employeeH:     handler.NewEmployeeHandler(employeeSvc, auditStore, httpLogger),
		settingsH:     handler.NewSettingsHandler(settings.NewService(db, auditLog, logger), httpLogger),
		authH:         handler.NewAuthHandler(employeeSvc, cfg.JWTSecret, cfg.TokenTTL, httpLogger),
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// Employees returns the employee service for the admin bootstrap.
func (s *Server) Employees() *employee.Service {
	return s.employees
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no token required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/token", s.rateLimitedHandler(s.authH.Token))

	// Protected routes, wrapped with RequireToken
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	outerMux.Handle("/", middleware.RequireToken(s.cfg.JWTSecret)(protectedMux))

	access := middleware.AccessControl(s.settingsStore, middleware.AccessConfig{
		FailOpen:   s.cfg.AccessFailOpen,
		TrustProxy: s.cfg.TrustProxy,
	}, s.logger.With("component", "access"))

	return middleware.RequestID(middleware.RequestLogger(s.logger.With("component", "http"))(access(outerMux)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		if s.cfg.TrustProxy {
			return middleware.RealIP(r)
		}
		return middleware.RemoteIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}

	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("POST /api/me/password", s.authH.ChangePassword)

	// Eligibility
	mux.HandleFunc("GET /api/eligibility", s.eligibilityH.Check)
	mux.HandleFunc("GET /api/customers/{id}/household", s.eligibilityH.Household)

	// Customers
	mux.HandleFunc("GET /api/customers", s.customerH.List)
	mux.HandleFunc("POST /api/customers", s.customerH.Create)
	mux.HandleFunc("GET /api/customers/{id}", s.customerH.Get)
	mux.HandleFunc("PUT /api/customers/{id}", s.customerH.Update)
	mux.HandleFunc("GET /api/customers/{id}/history", s.customerH.History)
	mux.HandleFunc("GET /api/customers/{id}/visits", s.visitH.ListByCustomer)
	mux.HandleFunc("GET /api/customers/{id}/vouchers", s.voucherH.ListByCustomer)

	// Visits
	mux.HandleFunc("POST /api/visits", s.visitH.Create)
	mux.HandleFunc("POST /api/visits/{id}/invalidate", s.visitH.Invalidate)

	// Vouchers
	mux.HandleFunc("GET /api/vouchers", s.voucherH.List)
	mux.HandleFunc("POST /api/vouchers", s.voucherH.Issue)
	mux.HandleFunc("GET /api/vouchers/{code}", s.voucherH.Get)
	mux.HandleFunc("POST /api/vouchers/{code}/redeem", s.voucherH.Redeem)
	mux.HandleFunc("POST /api/vouchers/{code}/revoke", s.voucherH.Revoke)

	// Administration
	mux.Handle("GET /api/settings", admin(s.settingsH.Get))
	mux.Handle("PUT /api/settings", admin(s.settingsH.Update))
	mux.Handle("GET /api/employees", admin(s.employeeH.List))
	mux.Handle("POST /api/employees", admin(s.employeeH.Create))
	mux.Handle("POST /api/employees/{id}/deactivate", admin(s.employeeH.Deactivate))
	mux.Handle("POST /api/employees/{id}/reactivate", admin(s.employeeH.Reactivate))
	mux.Handle("POST /api/employees/{id}/password", admin(s.employeeH.ResetPassword))
	mux.Handle("GET /api/employees/{id}/actions", admin(s.employeeH.Actions))

	// Live audit feed
	mux.Handle("GET /ws/audit", admin(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.cfg.WSOrigins)))
}
