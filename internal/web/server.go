package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/service"
)

// Services bundles the application services the HTTP API exposes.
type Services struct {
	Inventory     *service.InventoryService
	BOMs          *service.BOMService
	ServiceOrders *service.ServiceOrderService
	Users         *service.UserService
}

type Server struct {
	inventory   *service.InventoryService
	boms        *service.BOMService
	orders      *service.ServiceOrderService
	users       *service.UserService
	tokens      *auth.Tokens
	corsOrigins []string
	mux         *http.ServeMux
	handler     http.Handler
	logger      *slog.Logger
}

func NewServer(svcs Services, tokens *auth.Tokens, corsOrigins []string, logger *slog.Logger) *Server {
	s := &Server{
		inventory:   svcs.Inventory,
		boms:        svcs.BOMs,
		orders:      svcs.ServiceOrders,
		users:       svcs.Users,
		tokens:      tokens,
		corsOrigins: corsOrigins,
		mux:         http.NewServeMux(),
		logger:      logger,
	}
	s.registerRoutes()

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         600,
	})
	s.handler = requestLogger(logger, securityHeaders(corsHandler(s.mux)))
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /uploads/{key}", s.handleGetImage)

	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/auth/me", s.authed(s.handleMe))

	s.mux.Handle("GET /api/users", s.admin(s.handleListUsers))
	s.mux.Handle("POST /api/users", s.admin(s.handleCreateUser))
	s.mux.Handle("PUT /api/users/{id}", s.admin(s.handleUpdateUser))
	s.mux.Handle("DELETE /api/users/{id}", s.admin(s.handleDeleteUser))

	s.mux.Handle("GET /api/inventory", s.authed(s.handleListItems))
	s.mux.Handle("GET /api/inventory/stats", s.authed(s.handleStats))
	s.mux.Handle("GET /api/inventory/export", s.authed(s.handleExportItems))
	s.mux.Handle("GET /api/inventory/verify", s.admin(s.handleVerifyLedger))
	s.mux.Handle("GET /api/inventory/{id}", s.authed(s.handleGetItem))
	s.mux.Handle("DELETE /api/inventory/{id}", s.authed(s.handleDeleteItem))
	s.mux.Handle("POST /api/inventory/in", s.authed(s.handleStockIn))
	s.mux.Handle("POST /api/inventory/out", s.authed(s.handleStockOut))
	s.mux.Handle("POST /api/inventory/move", s.authed(s.handleStockMove))

	s.mux.Handle("GET /api/history", s.authed(s.handleHistory))
	s.mux.Handle("GET /api/history/export", s.authed(s.handleExportHistory))

	s.mux.Handle("GET /api/boms", s.authed(s.handleListBOMs))
	s.mux.Handle("POST /api/boms", s.authed(s.handleCreateBOM))
	s.mux.Handle("GET /api/boms/{id}", s.authed(s.handleGetBOM))
	s.mux.Handle("PUT /api/boms/{id}", s.authed(s.handleUpdateBOM))
	s.mux.Handle("DELETE /api/boms/{id}", s.authed(s.handleDeleteBOM))
	s.mux.Handle("POST /api/boms/{id}/execute", s.authed(s.handleExecuteBOM))

	s.mux.Handle("GET /api/service", s.authed(s.handleListServiceOrders))
	s.mux.Handle("POST /api/service", s.authed(s.handleCreateServiceOrder))
	s.mux.Handle("GET /api/service/{id}", s.authed(s.handleGetServiceOrder))
	s.mux.Handle("PUT /api/service/{id}", s.authed(s.handleUpdateServiceOrder))
	s.mux.Handle("DELETE /api/service/{id}", s.authed(s.handleDeleteServiceOrder))
	s.mux.Handle("GET /api/service/{id}/parts", s.authed(s.handleListServiceParts))
	s.mux.Handle("POST /api/service/{id}/parts", s.authed(s.handleAddServicePart))
}

// securityHeaders sets hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr, "cors_origins", s.corsOrigins)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
