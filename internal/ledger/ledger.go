// Package ledger applies the effects of successful generations to a user's quota and
// credits. Evaluation and mutation for one user always run under that user's lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/veocreator/internal/entitlement"
	"github.com/digkill/veocreator/internal/lock"
	"github.com/digkill/veocreator/internal/models"
)

var (
	ErrNegativeBalance    = errors.New("usage would drive a balance negative")
	ErrUnknownReservation = errors.New("reservation is not pending")
	ErrInvalidReservation = errors.New("reservation is nil")
)

// Store loads users and persists ledger writes. SaveUsage must only succeed when
// the stored version still equals prev.Version.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUsage(ctx context.Context, prev, next *models.User) error
}

const holdRemoveTimeout = 5 * time.Second

// Reservation is an admitted but not yet committed generation. It is kept in a
// HoldStore and never written to the user store.
type Reservation struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Tier      models.ModelTier `json:"tier"`
	Cost      int              `json:"cost"`
	CreatedAt time.Time        `json:"createdAt"`
}

type Ledger struct {
	store  Store
	locker lock.Locker
	holds  HoldStore
	policy entitlement.Policy
	log    *slog.Logger
}

// New builds a ledger with process-local holds. Replicas sharing one user store
// must also share holds, see WithHolds.
func New(store Store, locker lock.Locker, policy entitlement.Policy, log *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locker: locker,
		holds:  NewMemoryHolds(),
		policy: policy,
		log:    log,
	}
}

// WithHolds replaces the hold store.
func (l *Ledger) WithHolds(holds HoldStore) *Ledger {
	l.holds = holds
	return l
}

func (l *Ledger) Policy() entitlement.Policy {
	return l.policy
}

// ApplyUsage returns a copy of user with one generation on tier charged at cost.
// The input is never modified.
func ApplyUsage(user models.User, tier models.ModelTier, cost int) (models.User, error) {
	if cost < 0 || cost > user.Credits || user.Remaining(tier) < 1 {
		return user, ErrNegativeBalance
	}
	next := user
	if tier == models.TierQuality {
		next.RemainingQualityVideos--
		next.Usage.Quality++
	} else {
		next.RemainingFastVideos--
		next.Usage.Fast++
	}
	next.Credits -= cost
	next.Version = user.Version + 1
	return next, nil
}

// Reserve evaluates the request against the stored balance minus every pending
// reservation of the same user and, if admitted, records a new reservation.
func (l *Ledger) Reserve(ctx context.Context, userID string, tier models.ModelTier) (*Reservation, error) {
	unlock, err := l.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	holds, err := l.holds.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective := withHolds(*user, holds, "")
	cost, denial := entitlement.Evaluate(&effective, tier, l.policy)
	if denial != nil {
		return nil, denial
	}

	res := &Reservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Tier:      tier,
		Cost:      cost,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.holds.Add(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Commit charges a reservation against the freshly loaded user and persists it.
// On any failure nothing is written and the in-memory result is discarded. The
// reservation is released whatever the outcome.
func (l *Ledger) Commit(ctx context.Context, res *Reservation) (*models.User, error) {
	if res == nil {
		return nil, ErrInvalidReservation
	}
	unlock, err := l.locker.Lock(ctx, res.UserID)
	if err != nil {
		l.Cancel(res)
		return nil, fmt.Errorf("lock user %s: %w", res.UserID, err)
	}
	defer unlock()
	defer l.Cancel(res)

	holds, err := l.holds.List(ctx, res.UserID)
	if err != nil {
		return nil, err
	}
	if !containsHold(holds, res.ID) {
		return nil, ErrUnknownReservation
	}

	user, err := l.store.GetUser(ctx, res.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	effective := withHolds(*user, holds, res.ID)
	if _, denial := entitlement.Evaluate(&effective, res.Tier, l.policy); denial != nil {
		l.log.Warn("reservation no longer admissible", "user_id", res.UserID, "reservation_id", res.ID, "reason", denial.Reason)
		return nil, denial
	}

	next, err := ApplyUsage(*user, res.Tier, res.Cost)
	if err != nil {
		return nil, err
	}
	if err := l.store.SaveUsage(ctx, user, &next); err != nil {
		l.log.Error("persist usage failed, discarding", "user_id", res.UserID, "reservation_id", res.ID, "err", err)
		return nil, fmt.Errorf("persist usage: %w", err)
	}
	return &next, nil
}

// Cancel drops a reservation without touching the store. Safe to call twice.
func (l *Ledger) Cancel(res *Reservation) {
	if res == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), holdRemoveTimeout)
	defer cancel()
	if err := l.holds.Remove(ctx, res.UserID, res.ID); err != nil {
		l.log.Warn("release reservation", "user_id", res.UserID, "reservation_id", res.ID, "err", err)
	}
}

// Pending returns the number of outstanding reservations for userID.
func (l *Ledger) Pending(userID string) int {
	holds, err := l.holds.List(context.Background(), userID)
	if err != nil {
		return 0
	}
	return len(holds)
}

func containsHold(holds []Reservation, id string) bool {
	for _, h := range holds {
		if h.ID == id {
			return true
		}
	}
	return false
}

// withHolds subtracts holds, except skipID, from user.
func withHolds(user models.User, holds []Reservation, skipID string) models.User {
	for _, hold := range holds {
		if hold.ID == skipID {
			continue
		}
		if hold.Tier == models.TierQuality {
			user.RemainingQualityVideos--
		} else {
			user.RemainingFastVideos--
		}
		user.Credits -= hold.Cost
	}
	return user
}
