package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/veocreator/internal/entitlement"
	"github.com/digkill/veocreator/internal/gemini"
	"github.com/digkill/veocreator/internal/ledger"
	"github.com/digkill/veocreator/internal/metrics"
	"github.com/digkill/veocreator/internal/models"
)

const commitTimeout = 10 * time.Second

type GenerationLogStore interface {
	Log(ctx context.Context, entry *models.GenerationLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationLog, error)
}

type GenerationService struct {
	log             *slog.Logger
	ledger          *ledger.Ledger
	dispatcher      gemini.Dispatcher
	generations     GenerationLogStore
	cache           SnapshotCache
	dispatchTimeout time.Duration
}

type GenerateInput struct {
	Prompt string
	Model  string
}

type GenerationResult struct {
	Video  *gemini.Video
	Tier   models.ModelTier
	Cost   int
	Prompt string
	// User is the state after the charge. Nil for guest generations.
	User *models.User
}

// NewGenerationService wires the ledger and the dispatcher. cache may be nil.
func NewGenerationService(log *slog.Logger, l *ledger.Ledger, dispatcher gemini.Dispatcher, generations GenerationLogStore, cache SnapshotCache, dispatchTimeout time.Duration) *GenerationService {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 5 * time.Minute
	}
	return &GenerationService{
		log:             log,
		ledger:          l,
		dispatcher:      dispatcher,
		generations:     generations,
		cache:           cache,
		dispatchTimeout: dispatchTimeout,
	}
}

// Generate runs one charged generation for userID. The entitlement is reserved
// before dispatch and charged only after the upstream returned a video.
func (s *GenerationService) Generate(ctx context.Context, userID string, in GenerateInput) (*GenerationResult, error) {
	if err := entitlement.ValidatePrompt(in.Prompt); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(in.Prompt)
	tier := models.ParseTier(in.Model)

	if userID == "" {
		_, denial := entitlement.Evaluate(nil, tier, s.ledger.Policy())
		metrics.GenerationsDenied.WithLabelValues(string(tier), string(denial.Reason)).Inc()
		return nil, denial
	}

	res, err := s.ledger.Reserve(ctx, userID, tier)
	if err != nil {
		if d, ok := entitlement.AsDenial(err); ok {
			metrics.GenerationsDenied.WithLabelValues(string(tier), string(d.Reason)).Inc()
		}
		return nil, err
	}
	metrics.PendingReservations.Inc()
	defer metrics.PendingReservations.Dec()

	video, err := s.dispatch(ctx, prompt, tier)
	if err != nil {
		s.ledger.Cancel(res)
		s.log.Warn("generation dispatch failed, nothing charged", "user_id", userID, "tier", tier, "err", err)
		return nil, err
	}

	// The upstream already produced the video; a client disconnect must not
	// abandon the charge halfway.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	user, err := s.ledger.Commit(commitCtx, res)
	if err != nil {
		if d, ok := entitlement.AsDenial(err); ok {
			metrics.GenerationsDenied.WithLabelValues(string(tier), string(d.Reason)).Inc()
		} else {
			metrics.CommitFailures.Inc()
		}
		return nil, err
	}
	metrics.GenerationsCommitted.WithLabelValues(string(tier)).Inc()

	entry := &models.GenerationLog{
		UserID:          userID,
		Tier:            tier,
		Prompt:          prompt,
		Cost:            res.Cost,
		VideoURL:        video.URL,
		DurationSeconds: video.DurationSeconds,
	}
	if err := s.generations.Log(commitCtx, entry); err != nil {
		s.log.Error("failed to log generation", "user_id", userID, "err", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(commitCtx, userID); err != nil {
			s.log.Warn("invalidate user snapshot", "user_id", userID, "err", err)
		}
	}

	s.log.Info("generation charged", "user_id", userID, "tier", tier, "cost", res.Cost,
		"credits", user.Credits, "remaining", user.Remaining(tier))

	return &GenerationResult{
		Video:  video,
		Tier:   tier,
		Cost:   res.Cost,
		Prompt: prompt,
		User:   user,
	}, nil
}

// GenerateGuest dispatches without any ledger involvement. Callers only use it when
// authentication is disabled and no bearer token was sent.
func (s *GenerationService) GenerateGuest(ctx context.Context, in GenerateInput) (*GenerationResult, error) {
	if err := entitlement.ValidatePrompt(in.Prompt); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(in.Prompt)
	tier := models.ParseTier(in.Model)

	video, err := s.dispatch(ctx, prompt, tier)
	if err != nil {
		return nil, err
	}
	metrics.GuestGenerations.Inc()
	return &GenerationResult{Video: video, Tier: tier, Prompt: prompt}, nil
}

func (s *GenerationService) History(ctx context.Context, userID string, limit int) ([]models.GenerationLog, error) {
	logs, err := s.generations.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return logs, nil
}

func (s *GenerationService) dispatch(ctx context.Context, prompt string, tier models.ModelTier) (*gemini.Video, error) {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	start := time.Now()
	video, err := s.dispatcher.Dispatch(dctx, prompt, tier)
	metrics.DispatchDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	if err != nil {
		de, ok := gemini.AsDispatchError(err)
		if !ok {
			de = &gemini.DispatchError{Kind: gemini.Transient, Err: err}
		}
		metrics.DispatchFailures.WithLabelValues(string(tier), de.Kind.String()).Inc()
		return nil, de
	}
	return video, nil
}
