package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/digkill/veocreator/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, entry *models.GenerationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
INSERT INTO generation_logs (id, user_id, tier, prompt, cost, video_url, duration_seconds)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Tier, entry.Prompt, entry.Cost, entry.VideoURL, entry.DurationSeconds); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// ListByUser returns the most recent generations of a user, newest first.
func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `
SELECT id, user_id, tier, prompt, cost, COALESCE(video_url, ''), duration_seconds, created_at
FROM generation_logs
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var logs []models.GenerationLog
	for rows.Next() {
		var entry models.GenerationLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Tier, &entry.Prompt, &entry.Cost, &entry.VideoURL, &entry.DurationSeconds, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
