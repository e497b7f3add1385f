package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/veocreator/internal/auth"
	"github.com/digkill/veocreator/internal/models"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// userFrom returns the authenticated user, or nil for anonymous requests.
func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// authenticate resolves the bearer token into a user. When required is false a
// request without an Authorization header passes through anonymously; a header that
// is present but invalid is always rejected.
func (s *Server) authenticate(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractToken(r)
			if errors.Is(err, auth.ErrMissingToken) {
				if required {
					s.writeError(w, http.StatusUnauthorized, "Authentication required", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				s.writeError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			identity, err := s.verifier.Verify(token)
			if err != nil {
				s.log.Debug("token rejected", "err", err)
				s.writeError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			user, err := s.users.Ensure(r.Context(), identity.UserID, identity.Name, identity.Email)
			if err != nil {
				s.internalError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// requirePayment rejects callers without an active subscription when payments
// are enforced. The ledger repeats the check against fresh state.
func (s *Server) requirePayment(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.PaymentRequired {
			next.ServeHTTP(w, r)
			return
		}
		user := userFrom(r.Context())
		if user == nil {
			s.writeError(w, http.StatusUnauthorized, "Authentication required for payment validation", nil)
			return
		}
		if !user.IsSubscribed || !user.HasPaymentMethod {
			s.writeError(w, http.StatusForbidden, "Active subscription required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if user := userFrom(r.Context()); user != nil {
			key = "user:" + user.ID
		}
		if !s.limiter.Allow(key) {
			s.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
