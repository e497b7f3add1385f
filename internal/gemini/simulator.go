package gemini

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/digkill/veocreator/internal/models"
)

var sampleVideos = []string{
	"https://samplelib.com/lib/preview/mp4/sample-5s.mp4",
	"https://samplelib.com/lib/preview/mp4/sample-10s.mp4",
	"https://samplelib.com/lib/preview/mp4/sample-15s.mp4",
}

// Simulator stands in for the upstream API in demo deployments. It waits a
// per-tier processing delay and returns a sample clip.
type Simulator struct {
	FastDelay    time.Duration
	QualityDelay time.Duration
	pick         func(n int) int
}

func NewSimulator(fastDelay, qualityDelay time.Duration) *Simulator {
	return &Simulator{FastDelay: fastDelay, QualityDelay: qualityDelay, pick: rand.IntN}
}

func (s *Simulator) Dispatch(ctx context.Context, prompt string, tier models.ModelTier) (*Video, error) {
	delay := s.FastDelay
	if tier == models.TierQuality {
		delay = s.QualityDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, transient(ctx.Err())
	case <-timer.C:
	}

	videoURL := sampleVideos[s.pick(len(sampleVideos))]
	duration := DefaultDuration(tier)
	raw, _ := json.Marshal(map[string]any{
		"simulated":       true,
		"prompt":          prompt,
		"tier":            tier,
		"url":             videoURL,
		"durationSeconds": duration,
	})
	return &Video{URL: videoURL, DurationSeconds: duration, Raw: raw}, nil
}
