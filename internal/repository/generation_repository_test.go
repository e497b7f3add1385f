package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/veocreator/internal/models"
)

func TestGenerationRepository_Log(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGenerationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_logs")).
		WithArgs(sqlmock.AnyArg(), "u1", models.TierQuality, "a lighthouse at dusk", 150, "https://cdn/video.mp4", 30).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.GenerationLog{
		UserID:          "u1",
		Tier:            models.TierQuality,
		Prompt:          "a lighthouse at dusk",
		Cost:            150,
		VideoURL:        "https://cdn/video.mp4",
		DurationSeconds: 30,
	}
	require.NoError(t, repo.Log(context.Background(), entry))
	assert.Len(t, entry.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationRepository_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGenerationRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "user_id", "tier", "prompt", "cost", "video_url", "duration_seconds", "created_at"}).
		AddRow("g2", "u1", "fast", "second", 80, "https://cdn/2.mp4", 15, now).
		AddRow("g1", "u1", "quality", "first", 150, "https://cdn/1.mp4", 30, now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_logs")).
		WithArgs("u1", 20).
		WillReturnRows(rows)

	logs, err := repo.ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "g2", logs[0].ID)
	assert.Equal(t, models.TierFast, logs[0].Tier)
	assert.Equal(t, 150, logs[1].Cost)
	assert.NoError(t, mock.ExpectationsWereMet())
}
