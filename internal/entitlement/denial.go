package entitlement

import (
	"errors"
	"fmt"

	"github.com/digkill/veocreator/internal/models"
)

type Reason string

const (
	NotAuthenticated      Reason = "not_authenticated"
	PaymentMethodRequired Reason = "payment_method_required"
	SubscriptionRequired  Reason = "subscription_required"
	QuotaExhausted        Reason = "quota_exhausted"
	InsufficientCredits   Reason = "insufficient_credits"
)

// Denial is the reason a generation was refused. Required and Available are set
// only for InsufficientCredits, Tier for the quota and credit reasons.
type Denial struct {
	Reason    Reason
	Tier      models.ModelTier
	Required  int
	Available int
}

func (d *Denial) Error() string {
	switch d.Reason {
	case NotAuthenticated:
		return "Authentication is required for video generation"
	case PaymentMethodRequired:
		return "Payment method is required for video generation"
	case SubscriptionRequired:
		return "Active subscription is required for video generation"
	case QuotaExhausted:
		return fmt.Sprintf("You have reached your weekly limit for %s videos", d.Tier)
	case InsufficientCredits:
		return fmt.Sprintf("Insufficient credits. Required: %d, Available: %d", d.Required, d.Available)
	default:
		return string(d.Reason)
	}
}

// AsDenial unwraps err into a *Denial.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
