package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/digkill/veocreator/internal/models"
	"github.com/digkill/veocreator/internal/service"
)

const maxWebhookBody = 64 << 10

type userView struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	Email                  string       `json:"email"`
	Credits                int          `json:"credits"`
	IsSubscribed           bool         `json:"isSubscribed"`
	HasPaymentMethod       bool         `json:"hasPaymentMethod"`
	RemainingFastVideos    int          `json:"remainingFastVideos"`
	RemainingQualityVideos int          `json:"remainingQualityVideos"`
	Usage                  models.Usage `json:"usage"`
}

func newUserView(u *models.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:                     u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		Credits:                u.Credits,
		IsSubscribed:           u.IsSubscribed,
		HasPaymentMethod:       u.HasPaymentMethod,
		RemainingFastVideos:    u.RemainingFastVideos,
		RemainingQualityVideos: u.RemainingQualityVideos,
		Usage:                  u.Usage,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type videoView struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
}

type generateResponse struct {
	Video    videoView        `json:"video"`
	Cost     int              `json:"cost"`
	Tier     models.ModelTier `json:"tier"`
	User     *userView        `json:"user,omitempty"`
	Upstream json.RawMessage  `json:"upstream,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLimits(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{
		"maxFastVideosPerWeek":    s.cfg.MaxFastVideosPerWeek,
		"maxQualityVideosPerWeek": s.cfg.MaxQualityVideosPerWeek,
		"creditsPerSubscription":  s.cfg.CreditsPerSubscription,
		"fastVideoCost":           s.cfg.FastVideoCost,
		"qualityVideoCost":        s.cfg.QualityVideoCost,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid json body")
		return
	}
	in := service.GenerateInput{Prompt: req.Prompt, Model: req.Model}

	var (
		res *service.GenerationResult
		err error
	)
	if user := userFrom(r.Context()); user != nil {
		res, err = s.generations.Generate(r.Context(), user.ID, in)
	} else {
		res, err = s.generations.GenerateGuest(r.Context(), in)
	}
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Video:    videoView{URL: res.Video.URL, DurationSeconds: res.Video.DurationSeconds},
		Cost:     res.Cost,
		Tier:     res.Tier,
		User:     newUserView(res.User),
		Upstream: res.Video.Raw,
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newUserView(userFrom(r.Context())))
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := s.generations.History(r.Context(), userFrom(r.Context()).ID, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if logs == nil {
		logs = []models.GenerationLog{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"videos": logs})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	url, err := s.payments.CreateCheckout(r.Context(), userFrom(r.Context()))
	if errors.Is(err, service.ErrPaymentUnavailable) {
		s.writeError(w, http.StatusServiceUnavailable, "Payments are not configured", nil)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.badRequest(w, "cannot read body")
		return
	}
	err = s.payments.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, service.ErrInvalidWebhook) {
		s.badRequest(w, "invalid webhook")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
