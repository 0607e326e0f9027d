package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/auth"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/config"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/database"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/server"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type BookingApp struct {
	log            zerolog.Logger
	db             database.BookingRepository
	srv            *http.Server
	hub            *server.Server
	broadcaster    *server.Broadcaster
	verifier       *auth.Verifier
	calc           *deadline.Calculator
	allowedOrigins []string
	checks         map[string]ReadinessCheck
}

func NewBookingApp(mux *http.ServeMux, logger zerolog.Logger, hub *server.Server, b *server.Broadcaster, db database.BookingRepository, calc *deadline.Calculator, cfg *config.Config) *BookingApp {
	s := &BookingApp{
		log:            logger.With().Str("component", "api").Logger(),
		db:             db,
		hub:            hub,
		broadcaster:    b,
		verifier:       auth.NewVerifier(cfg.SigningKey),
		calc:           calc,
		allowedOrigins: cfg.Server.AllowedOrigins,
		checks:         make(map[string]ReadinessCheck),
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /readyz", s.readyCheck)
	mux.HandleFunc("GET /api/bookings", s.authMiddleware(s.listBookings))
	mux.HandleFunc("POST /api/bookings", s.authMiddleware(s.createBooking))
	mux.HandleFunc("GET /api/bookings/{id}/schedule", s.authMiddleware(s.bookingSchedule))
	mux.HandleFunc("PUT /api/bookings/{id}/status", s.authMiddleware(s.adminOnly(s.setBookingStatus)))
	mux.HandleFunc("GET /api/stats", s.authMiddleware(s.adminOnly(s.connectionStats)))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h,
	}

	return s
}

// AddReadinessCheck registers a dependency probed by GET /readyz in
// addition to the booking store.
func (s *BookingApp) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checks[name] = check
}

func (s *BookingApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *BookingApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *BookingApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
