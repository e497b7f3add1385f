package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/veocreator/internal/auth"
	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/service"
)

type Server struct {
	cfg         config.Config
	log         *slog.Logger
	verifier    *auth.Verifier
	users       *service.UserService
	generations *service.GenerationService
	payments    *service.PaymentService
	limiter     *RateLimiter
	router      *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, verifier *auth.Verifier, users *service.UserService, generations *service.GenerationService, payments *service.PaymentService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:         cfg,
		log:         log,
		verifier:    verifier,
		users:       users,
		generations: generations,
		payments:    payments,
		limiter:     NewRateLimiter(cfg.GenerateRatePerMinute),
		router:      r,
	}
	r.Use(s.logRequests)

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/limits", s.handleLimits)
	r.Post("/webhook/stripe", s.handleStripeWebhook)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(gen chi.Router) {
		gen.Use(s.authenticate(cfg.AuthRequired))
		gen.Use(s.requirePayment)
		gen.Use(s.rateLimit)
		gen.Post("/api/generate-video", s.handleGenerate)
	})
	r.Group(func(protected chi.Router) {
		protected.Use(s.authenticate(true))
		protected.Get("/api/user", s.handleUser)
		protected.Get("/api/videos", s.handleVideos)
		protected.Post("/api/subscription/checkout", s.handleCheckout)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation requests stay open for the whole upstream round trip.
		WriteTimeout: s.cfg.DispatchTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeError(w, http.StatusBadRequest, msg, nil)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
}
