package api

import (
	"errors"
	"net/http"

	"github.com/digkill/veocreator/internal/entitlement"
	"github.com/digkill/veocreator/internal/gemini"
	"github.com/digkill/veocreator/internal/models"
	"github.com/digkill/veocreator/internal/repository"
)

type errorResponse struct {
	Error     string             `json:"error"`
	Reason    entitlement.Reason `json:"reason,omitempty"`
	Tier      models.ModelTier   `json:"tier,omitempty"`
	Required  int                `json:"required,omitempty"`
	Available *int               `json:"available,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, d *entitlement.Denial) {
	resp := errorResponse{Error: msg}
	if d != nil {
		resp.Reason = d.Reason
		resp.Tier = d.Tier
		if d.Reason == entitlement.InsufficientCredits {
			available := d.Available
			resp.Required = d.Required
			resp.Available = &available
		}
	}
	s.writeJSON(w, status, resp)
}

var denialStatus = map[entitlement.Reason]int{
	entitlement.NotAuthenticated:      http.StatusUnauthorized,
	entitlement.PaymentMethodRequired: http.StatusForbidden,
	entitlement.SubscriptionRequired:  http.StatusForbidden,
	entitlement.QuotaExhausted:        http.StatusTooManyRequests,
	entitlement.InsufficientCredits:   http.StatusPaymentRequired,
}

// writeGenerationError maps a generation failure onto a status and a
// human-readable message.
func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entitlement.ErrPromptRequired), errors.Is(err, entitlement.ErrPromptTooLong):
		s.badRequest(w, err.Error())
		return
	case errors.Is(err, repository.ErrUserNotFound):
		s.writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	if d, ok := entitlement.AsDenial(err); ok {
		status, known := denialStatus[d.Reason]
		if !known {
			status = http.StatusForbidden
		}
		s.writeError(w, status, d.Error(), d)
		return
	}

	if de, ok := gemini.AsDispatchError(err); ok {
		s.log.Warn("generation dispatch failed", "kind", de.Kind, "status", de.StatusCode, "err", de.Err)
		if de.Kind == gemini.Transient {
			s.writeError(w, http.StatusServiceUnavailable, "Video generation is temporarily unavailable, please try again", nil)
			return
		}
		s.writeError(w, http.StatusBadGateway, "Failed to generate video", nil)
		return
	}

	s.log.Error("generation failed", "err", err)
	s.writeError(w, http.StatusInternalServerError, "Failed to record video usage, nothing was charged", nil)
}
