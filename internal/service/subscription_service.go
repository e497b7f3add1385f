package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/lock"
	"github.com/digkill/veocreator/internal/models"
	"github.com/digkill/veocreator/internal/repository"
)

const (
	ProviderStripe = "stripe"
	ProviderManual = "manual"

	mysqlDuplicateEntry = 1062
)

// SubscriptionService owns every write to a user's entitlement outside of
// generation charges. All writes run under the same per-user lock as the ledger.
type SubscriptionService struct {
	cfg      config.Config
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	locker   lock.Locker
	cache    *UserService
	log      *slog.Logger
}

func NewSubscriptionService(cfg config.Config, users *repository.UserRepository, payments *repository.PaymentRepository, locker lock.Locker, cache *UserService, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		cfg:      cfg,
		users:    users,
		payments: payments,
		locker:   locker,
		cache:    cache,
		log:      log,
	}
}

type ActivationInput struct {
	UserID   string
	Provider string
	ChargeID string
	Currency string
	Amount   int64
	Raw      string
}

// Activate grants a subscription for a completed payment. A payment that was
// already recorded is ignored, so redelivered events grant credits once. The
// boolean reports whether this call changed the user.
func (s *SubscriptionService) Activate(ctx context.Context, in ActivationInput) (bool, error) {
	if in.UserID == "" {
		return false, fmt.Errorf("activation without user id")
	}
	if in.Provider == "" {
		in.Provider = ProviderManual
	}
	if in.ChargeID == "" {
		in.ChargeID = uuid.NewString()
	}
	if in.Currency == "" {
		in.Currency = s.cfg.PaymentCurrency
	}

	unlock, err := s.locker.Lock(ctx, in.UserID)
	if err != nil {
		return false, fmt.Errorf("lock user %s: %w", in.UserID, err)
	}
	defer unlock()

	tx, err := s.payments.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM payments WHERE provider = ? AND provider_payment_charge_id = ? FOR UPDATE`, in.Provider, in.ChargeID)
	switch err := row.Scan(&existing); {
	case err == nil:
		s.log.Info("payment already applied", "user_id", in.UserID, "provider", in.Provider, "charge_id", in.ChargeID)
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("check payment: %w", err)
	}

	payment := &models.Payment{
		UserID:         in.UserID,
		Provider:       in.Provider,
		ProviderCharge: in.ChargeID,
		Currency:       in.Currency,
		Amount:         in.Amount,
		Status:         "paid",
		RawPayload:     in.Raw,
	}
	if err := s.payments.CreateWith(ctx, tx, payment); err != nil {
		if isDuplicateEntry(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.users.ActivateWith(ctx, tx, in.UserID, s.cfg.CreditsPerSubscription); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit activation: %w", err)
	}

	s.cache.Invalidate(ctx, in.UserID)
	s.log.Info("subscription activated", "user_id", in.UserID, "provider", in.Provider,
		"charge_id", in.ChargeID, "credits", s.cfg.CreditsPerSubscription)
	return true, nil
}

func (s *SubscriptionService) Deactivate(ctx context.Context, userID string) error {
	return s.withUser(ctx, userID, func() error {
		if err := s.users.SetSubscribed(ctx, userID, false); err != nil {
			return err
		}
		s.log.Info("subscription deactivated", "user_id", userID)
		return nil
	})
}

// AdjustCredits adds delta to the balance, clamping at zero.
func (s *SubscriptionService) AdjustCredits(ctx context.Context, userID string, delta int) error {
	return s.withUser(ctx, userID, func() error {
		return s.users.UpdateCredits(ctx, userID, delta)
	})
}

func (s *SubscriptionService) ResetWeeklyQuota(ctx context.Context, userID string) error {
	return s.withUser(ctx, userID, func() error {
		return s.users.ResetWeeklyQuota(ctx, userID, s.cfg.MaxFastVideosPerWeek, s.cfg.MaxQualityVideosPerWeek)
	})
}

// ResetAllWeeklyQuotas refills every subscribed user. Each user is reset under its
// own lock so an in-flight charge never races the refill. It returns the number of
// users reset; a failure stops the run.
func (s *SubscriptionService) ResetAllWeeklyQuotas(ctx context.Context) (int, error) {
	ids, err := s.users.ListSubscribedIDs(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, id := range ids {
		if err := s.ResetWeeklyQuota(ctx, id); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				continue
			}
			return reset, fmt.Errorf("reset quota for %s: %w", id, err)
		}
		reset++
	}
	s.log.Info("weekly quotas reset", "users", reset)
	return reset, nil
}

func (s *SubscriptionService) withUser(ctx context.Context, userID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	if err := fn(); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
