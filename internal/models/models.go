package models

import (
	"strings"
	"time"
)

type ModelTier string

const (
	TierFast    ModelTier = "fast"
	TierQuality ModelTier = "quality"
)

// ParseTier resolves any client model name to a tier. Names containing "quality"
// map to TierQuality, everything else (including "veo3fast" and "") to TierFast.
func ParseTier(model string) ModelTier {
	if strings.Contains(strings.ToLower(model), "quality") {
		return TierQuality
	}
	return TierFast
}

type Usage struct {
	Fast    int `json:"fast"`
	Quality int `json:"quality"`
}

type User struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Email                  string    `json:"email"`
	IsSubscribed           bool      `json:"isSubscribed"`
	HasPaymentMethod       bool      `json:"hasPaymentMethod"`
	RemainingFastVideos    int       `json:"remainingFastVideos"`
	RemainingQualityVideos int       `json:"remainingQualityVideos"`
	Credits                int       `json:"credits"`
	Usage                  Usage     `json:"usage"`
	Version                int64     `json:"version"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// Remaining returns the quota pool for tier.
func (u *User) Remaining(tier ModelTier) int {
	if tier == TierQuality {
		return u.RemainingQualityVideos
	}
	return u.RemainingFastVideos
}

type GenerationLog struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Tier            ModelTier `json:"tier"`
	Prompt          string    `json:"prompt"`
	Cost            int       `json:"cost"`
	VideoURL        string    `json:"videoUrl"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Payment struct {
	ID             int64
	UserID         string
	Provider       string
	ProviderCharge string
	Currency       string
	Amount         int64
	Status         string
	RawPayload     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
