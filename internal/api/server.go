package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"atelier/internal/access"
	"atelier/internal/availability"
	"atelier/internal/booking"
	"atelier/internal/model"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// Catalog lists services for the public API.
type Catalog interface {
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
}

// Options configures the HTTP server.
type Options struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustedProxies may set the client address through X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// HTTPServer exposes the public and admin JSON API.
type HTTPServer struct {
	server       *http.Server
	availability *availability.Service
	catalog      Catalog
	bookings     *booking.Service
	manager      Manager
	auth         *access.Authenticator
	limiter      Limiter
	clients      clientResolver
	logger       zerolog.Logger
}

// NewHTTPServer wires handlers. limiter may be nil to disable rate limiting.
func NewHTTPServer(
	opts Options,
	avail *availability.Service,
	catalog Catalog,
	bookings *booking.Service,
	manager Manager,
	auth *access.Authenticator,
	limiter Limiter,
	logger zerolog.Logger,
) *HTTPServer {
	s := &HTTPServer{
		availability: avail,
		catalog:      catalog,
		bookings:     bookings,
		manager:      manager,
		auth:         auth,
		limiter:      limiter,
		clients:      clientResolver{trusted: opts.TrustedProxies},
		logger:       logger.With().Str("component", "api").Logger(),
	}

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.routes(),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/availability/slots", s.handleSlots)
	mux.HandleFunc("GET /api/services", s.handleListServices)
	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/bookings/{reference}", s.handleGetBooking)
	mux.HandleFunc("DELETE /api/bookings/{reference}", s.handleCancelBooking)

	admin := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, requireAdmin(s.auth, h))
	}
	admin("GET /api/admin/bookings", s.handleAdminListBookings)
	admin("GET /api/admin/bookings/{id}", s.handleAdminGetBooking)
	admin("PATCH /api/admin/bookings/{id}/status", s.handleAdminUpdateStatus)
	admin("PATCH /api/admin/bookings/{id}/payment", s.handleAdminUpdatePayment)
	admin("GET /api/admin/schedule", s.handleAdminListSchedule)
	admin("PUT /api/admin/schedule/{day}", s.handleAdminSetSchedule)
	admin("GET /api/admin/blocked-dates", s.handleAdminListBlockedDates)
	admin("POST /api/admin/blocked-dates", s.handleAdminBlockDate)
	admin("DELETE /api/admin/blocked-dates/{date}", s.handleAdminUnblockDate)
	admin("GET /api/admin/services", s.handleAdminListServices)
	admin("POST /api/admin/services", s.handleAdminCreateService)
	admin("PUT /api/admin/services/{id}", s.handleAdminUpdateService)
	admin("GET /api/admin/export", s.handleAdminExport)

	middleware := []Middleware{
		withRecover(s.logger),
		withAccessLog(s.clients, s.logger),
		withBodyLimit(maxBodyBytes),
	}
	if s.limiter != nil {
		middleware = append(middleware, withRateLimit(s.limiter, s.clients, s.logger))
	}
	return Chain(mux, middleware...)
}

// Handler returns the root handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
