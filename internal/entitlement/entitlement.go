// Package entitlement decides whether a user may run a video generation and what it
// costs. Everything here is pure: no I/O and no mutation of the user.
package entitlement

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/digkill/veocreator/internal/models"
)

const MaxPromptLength = 500

var (
	ErrPromptRequired = errors.New("Prompt is required for video generation")
	ErrPromptTooLong  = fmt.Errorf("Prompt exceeds maximum length of %d characters", MaxPromptLength)
)

// Policy carries the configurable switches and the single cost table.
type Policy struct {
	PaymentRequired  bool
	FastVideoCost    int
	QualityVideoCost int
}

func (p Policy) Cost(tier models.ModelTier) int {
	if tier == models.TierQuality {
		return p.QualityVideoCost
	}
	return p.FastVideoCost
}

// ValidatePrompt is the request-shape check. It runs before Evaluate.
func ValidatePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrPromptRequired
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	return nil
}

// Evaluate returns the credit cost of a generation for user on tier, or the first
// failing check as a *Denial. A nil user is an anonymous caller.
func Evaluate(user *models.User, tier models.ModelTier, policy Policy) (int, *Denial) {
	if user == nil {
		return 0, &Denial{Reason: NotAuthenticated}
	}
	if policy.PaymentRequired && !user.HasPaymentMethod {
		return 0, &Denial{Reason: PaymentMethodRequired}
	}
	if !user.IsSubscribed {
		return 0, &Denial{Reason: SubscriptionRequired}
	}
	if user.Remaining(tier) <= 0 {
		return 0, &Denial{Reason: QuotaExhausted, Tier: tier}
	}
	cost := policy.Cost(tier)
	if cost > user.Credits {
		return 0, &Denial{Reason: InsufficientCredits, Tier: tier, Required: cost, Available: user.Credits}
	}
	return cost, nil
}
