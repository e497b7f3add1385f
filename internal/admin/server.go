package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/veocreator/internal/models"
	"github.com/digkill/veocreator/internal/repository"
	"github.com/digkill/veocreator/internal/service"
)

type UserReader interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type Subscriptions interface {
	Activate(ctx context.Context, in service.ActivationInput) (bool, error)
	Deactivate(ctx context.Context, userID string) error
	AdjustCredits(ctx context.Context, userID string, delta int) error
	ResetWeeklyQuota(ctx context.Context, userID string) error
	ResetAllWeeklyQuotas(ctx context.Context) (int, error)
}

type Server struct {
	addr          string
	username      string
	password      string
	log           *slog.Logger
	users         UserReader
	subscriptions Subscriptions
	router        *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, users UserReader, subscriptions Subscriptions) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:          addr,
		username:      username,
		password:      password,
		log:           log,
		users:         users,
		subscriptions: subscriptions,
		router:        r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/credits", s.handleAdjustCredits)
			r.Post("/subscription", s.handleActivate)
			r.Delete("/subscription", s.handleDeactivate)
			r.Post("/reset-quota", s.handleResetQuota)
		})
		protected.Post("/quota/reset", s.handleResetAll)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), userID(r))
	if err != nil {
		s.userError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type creditsRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req creditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Delta == 0 {
		http.Error(w, "delta required", http.StatusBadRequest)
		return
	}
	id := userID(r)
	if err := s.subscriptions.AdjustCredits(r.Context(), id, req.Delta); err != nil {
		s.userError(w, err)
		return
	}
	s.log.Info("credits adjusted by admin", "user_id", id, "delta", req.Delta)
	s.respondWithUser(w, r, id)
}

type activationRequest struct {
	ChargeID string `json:"charge_id"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// handleActivate grants a subscription without a payment provider. The body is
// optional; repeating a charge_id is a no-op.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := userID(r)
	activated, err := s.subscriptions.Activate(r.Context(), service.ActivationInput{
		UserID:   id,
		Provider: service.ProviderManual,
		ChargeID: strings.TrimSpace(req.ChargeID),
		Currency: strings.ToLower(req.Currency),
		Amount:   req.Amount,
	})
	if err != nil {
		s.userError(w, err)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.userError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"activated": activated, "user": user})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if err := s.subscriptions.Deactivate(r.Context(), id); err != nil {
		s.userError(w, err)
		return
	}
	s.respondWithUser(w, r, id)
}

func (s *Server) handleResetQuota(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if err := s.subscriptions.ResetWeeklyQuota(r.Context(), id); err != nil {
		s.userError(w, err)
		return
	}
	s.respondWithUser(w, r, id)
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.subscriptions.ResetAllWeeklyQuotas(r.Context())
	if err != nil {
		s.log.Error("bulk quota reset stopped", "reset", n, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"reset": n, "error": "reset incomplete"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func (s *Server) respondWithUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.userError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="veocreator"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) userError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func userID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
