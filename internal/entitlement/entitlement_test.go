package entitlement

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/veocreator/internal/models"
)

var defaultPolicy = Policy{PaymentRequired: true, FastVideoCost: 80, QualityVideoCost: 150}

func subscribedUser(fast, quality, credits int) *models.User {
	return &models.User{
		ID:                     "user-1",
		IsSubscribed:           true,
		HasPaymentMethod:       true,
		RemainingFastVideos:    fast,
		RemainingQualityVideos: quality,
		Credits:                credits,
	}
}

func TestEvaluate_OrderedChecks(t *testing.T) {
	tests := []struct {
		name       string
		user       *models.User
		tier       models.ModelTier
		policy     Policy
		wantCost   int
		wantReason Reason
	}{
		{
			name:       "anonymous",
			user:       nil,
			tier:       models.TierQuality,
			policy:     defaultPolicy,
			wantReason: NotAuthenticated,
		},
		{
			name: "payment method missing wins over subscription",
			user: &models.User{ID: "u", RemainingFastVideos: 4, Credits: 950},
			tier: models.TierFast, policy: defaultPolicy,
			wantReason: PaymentMethodRequired,
		},
		{
			name: "payment method ignored when not required",
			user: &models.User{ID: "u", RemainingFastVideos: 4, Credits: 950},
			tier: models.TierFast, policy: Policy{FastVideoCost: 80, QualityVideoCost: 150},
			wantReason: SubscriptionRequired,
		},
		{
			name: "not subscribed",
			user: &models.User{ID: "u", HasPaymentMethod: true, RemainingFastVideos: 4, Credits: 950},
			tier: models.TierFast, policy: defaultPolicy,
			wantReason: SubscriptionRequired,
		},
		{
			name: "fast quota exhausted with credits available",
			user: subscribedUser(0, 1, 950),
			tier: models.TierFast, policy: defaultPolicy,
			wantReason: QuotaExhausted,
		},
		{
			name: "quota checked before credits",
			user: subscribedUser(1, 0, 0),
			tier: models.TierQuality, policy: defaultPolicy,
			wantReason: QuotaExhausted,
		},
		{
			name: "insufficient credits",
			user: subscribedUser(1, 1, 79),
			tier: models.TierFast, policy: defaultPolicy,
			wantReason: InsufficientCredits,
		},
		{
			name: "exact credits are enough",
			user: subscribedUser(1, 0, 80),
			tier: models.TierFast, policy: defaultPolicy,
			wantCost: 80,
		},
		{
			name: "quality ok",
			user: subscribedUser(0, 1, 150),
			tier: models.TierQuality, policy: defaultPolicy,
			wantCost: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, denial := Evaluate(tt.user, tt.tier, tt.policy)
			if tt.wantReason == "" {
				require.Nil(t, denial)
				assert.Equal(t, tt.wantCost, cost)
				return
			}
			require.NotNil(t, denial)
			assert.Equal(t, tt.wantReason, denial.Reason)
			assert.Zero(t, cost)
		})
	}
}

func TestEvaluate_InsufficientCreditsEchoesNumbers(t *testing.T) {
	_, denial := Evaluate(subscribedUser(1, 1, 100), models.TierQuality, defaultPolicy)
	require.NotNil(t, denial)
	assert.Equal(t, InsufficientCredits, denial.Reason)
	assert.Equal(t, 150, denial.Required)
	assert.Equal(t, 100, denial.Available)
	assert.Equal(t, "Insufficient credits. Required: 150, Available: 100", denial.Error())
}

func TestEvaluate_DoesNotMutateUser(t *testing.T) {
	user := subscribedUser(1, 1, 950)
	before := *user
	for i := 0; i < 3; i++ {
		cost, denial := Evaluate(user, models.TierFast, defaultPolicy)
		require.Nil(t, denial)
		assert.Equal(t, 80, cost)
	}
	assert.Equal(t, before, *user)
}

func TestDenial_Messages(t *testing.T) {
	assert.Equal(t, "You have reached your weekly limit for quality videos",
		(&Denial{Reason: QuotaExhausted, Tier: models.TierQuality}).Error())
	assert.Equal(t, "Active subscription is required for video generation",
		(&Denial{Reason: SubscriptionRequired}).Error())

	wrapped := fmt.Errorf("reserve: %w", &Denial{Reason: NotAuthenticated})
	d, ok := AsDenial(wrapped)
	require.True(t, ok)
	assert.Equal(t, NotAuthenticated, d.Reason)

	_, ok = AsDenial(errors.New("boom"))
	assert.False(t, ok)
}

func TestValidatePrompt(t *testing.T) {
	assert.ErrorIs(t, ValidatePrompt(""), ErrPromptRequired)
	assert.ErrorIs(t, ValidatePrompt("   \n"), ErrPromptRequired)
	assert.NoError(t, ValidatePrompt("a drone shot over a glacier"))
	assert.NoError(t, ValidatePrompt(strings.Repeat("a", MaxPromptLength)))
	assert.ErrorIs(t, ValidatePrompt(strings.Repeat("a", MaxPromptLength+1)), ErrPromptTooLong)
	// multi-byte characters count once
	assert.NoError(t, ValidatePrompt(strings.Repeat("é", MaxPromptLength)))
}

func TestPolicyCost(t *testing.T) {
	p := Policy{FastVideoCost: 100, QualityVideoCost: 200}
	assert.Equal(t, 100, p.Cost(models.TierFast))
	assert.Equal(t, 200, p.Cost(models.TierQuality))
	assert.Equal(t, 100, p.Cost(models.ParseTier("veo3fast")))
	assert.Equal(t, 200, p.Cost(models.ParseTier("veo3-quality")))
}
