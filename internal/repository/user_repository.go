package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/veocreator/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrVersionConflict = errors.New("user was modified concurrently")
)

const userColumns = `id, COALESCE(name, ''), COALESCE(email, ''), is_subscribed, has_payment_method,
remaining_fast_videos, remaining_quality_videos, credits, usage_fast, usage_quality, version, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.IsSubscribed, &u.HasPaymentMethod,
		&u.RemainingFastVideos, &u.RemainingQualityVideos, &u.Credits, &u.Usage.Fast, &u.Usage.Quality,
		&u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// Create inserts a user with zero balances, the state of a fresh signup.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (id, name, email, is_subscribed, has_payment_method, remaining_fast_videos, remaining_quality_videos, credits)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.IsSubscribed, user.HasPaymentMethod,
		user.RemainingFastVideos, user.RemainingQualityVideos, user.Credits); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.GetUser(ctx, user.ID)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, email string) error {
	const query = `
UPDATE users SET name = NULLIF(?, ''), email = NULLIF(?, ''), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, name, email, id); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure returns the user with id, creating it when missing. The boolean reports
// whether the user was created.
func (r *UserRepository) Ensure(ctx context.Context, id, name, email string) (*models.User, bool, error) {
	user, err := r.GetUser(ctx, id)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	if user != nil {
		nextName, nextEmail := user.Name, user.Email
		if name != "" {
			nextName = name
		}
		if email != "" {
			nextEmail = email
		}
		if nextName != user.Name || nextEmail != user.Email {
			if err := r.UpdateProfile(ctx, id, nextName, nextEmail); err != nil {
				return nil, false, err
			}
			user.Name, user.Email = nextName, nextEmail
		}
		return user, false, nil
	}
	created, err := r.Create(ctx, &models.User{ID: id, Name: name, Email: email})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// SaveUsage writes the balances of next if the stored version still equals
// prev.Version. The balance guards keep the row valid even if a caller misbehaves.
func (r *UserRepository) SaveUsage(ctx context.Context, prev, next *models.User) error {
	const query = `
UPDATE users
SET remaining_fast_videos = ?, remaining_quality_videos = ?, credits = ?, usage_fast = ?, usage_quality = ?,
    version = version + 1, updated_at = NOW()
WHERE id = ? AND version = ? AND ? >= 0 AND ? >= 0 AND ? >= 0`
	res, err := r.db.ExecContext(ctx, query,
		next.RemainingFastVideos, next.RemainingQualityVideos, next.Credits, next.Usage.Fast, next.Usage.Quality,
		prev.ID, prev.Version,
		next.RemainingFastVideos, next.RemainingQualityVideos, next.Credits)
	if err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("usage rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *UserRepository) UpdateCredits(ctx context.Context, id string, delta int) error {
	const query = `UPDATE users SET credits = GREATEST(credits + ?, 0), version = version + 1, updated_at = NOW() WHERE id = ?`
	return r.execOne(ctx, "update credits", query, delta, id)
}

func (r *UserRepository) SetSubscribed(ctx context.Context, id string, subscribed bool) error {
	const query = `UPDATE users SET is_subscribed = ?, version = version + 1, updated_at = NOW() WHERE id = ?`
	return r.execOne(ctx, "set subscribed", query, subscribed, id)
}

func (r *UserRepository) ResetWeeklyQuota(ctx context.Context, id string, fast, quality int) error {
	const query = `
UPDATE users SET remaining_fast_videos = ?, remaining_quality_videos = ?, version = version + 1, updated_at = NOW()
WHERE id = ?`
	return r.execOne(ctx, "reset weekly quota", query, fast, quality, id)
}

func (r *UserRepository) ListSubscribedIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM users WHERE is_subscribed = 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscribed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ActivateWith grants a subscription through ex, typically a transaction that also
// records the payment.
func (r *UserRepository) ActivateWith(ctx context.Context, ex execer, id string, credits int) error {
	const query = `
UPDATE users SET is_subscribed = 1, has_payment_method = 1, credits = ?, version = version + 1, updated_at = NOW()
WHERE id = ?`
	res, err := ex.ExecContext(ctx, query, credits, id)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
